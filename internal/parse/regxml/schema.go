package regxml

import "encoding/xml"

// Submission documents carry their payload in element attributes, not
// character data. The root element name encodes the shape (a001..a004), so
// the document struct leaves XMLName unconstrained and records what it saw.
type document struct {
	XMLName xml.Name
	List    basicDataList `xml:"LISTA_DADOS_BASICOS"`
}

type basicDataList struct {
	Items []basicData `xml:"DADOS_BASICOS"`
}

type basicData struct {
	Installation   string `xml:"COD_INSTALACAO,attr"`
	Tag            string `xml:"COD_TAG_PONTO_MEDICAO,attr"`
	PrimarySerial  string `xml:"NUM_SERIE_ELEMENTO_PRIMARIO,attr"`
	ComputerSerial string `xml:"NUM_SERIE_COMPUTADOR_VAZAO,attr"`

	Configs         []flowComputerConfig `xml:"LISTA_CONFIGURACAO_CV>CONFIGURACAO_CV"`
	PrimaryElements []primaryElement     `xml:"LISTA_ELEMENTO_PRIMARIO>ELEMENTO_PRIMARIO"`
	PressureInst    []instrument         `xml:"LISTA_INSTRUMENTO_PRESSAO>INSTRUMENTO_PRESSAO"`
	TemperatureInst []instrument         `xml:"LISTA_INSTRUMENTO_TEMPERATURA>INSTRUMENTO_TEMPERATURA"`
	Production      []production         `xml:"LISTA_PRODUCAO>PRODUCAO"`

	Alarms []alarm `xml:"LISTA_ALARME>ALARME"`
	Events []event `xml:"LISTA_EVENTO>EVENTO"`
}

type flowComputerConfig struct {
	CollectedAt     string `xml:"DHA_COLETA,attr"`
	Temperature     string `xml:"MED_TEMPERATURA,attr"`
	AtmosphericKPa  string `xml:"MED_PRESSAO_ATMSA,attr"`
	ReferenceKPa    string `xml:"MED_PRESSAO_RFRNA,attr"`
	RelativeDensity string `xml:"MED_DENSIDADE_RELATIVA,attr"`
	SoftwareVersion string `xml:"DSC_VERSAO_SOFTWARE,attr"`
}

// primaryElement captures all attributes so the twelve indexed
// ICE_METER_FACTOR_n / QTD_PULSOS_METER_FACTOR_n pairs can be walked by name.
type primaryElement struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

type instrument struct {
	Serial          string `xml:"NUM_SERIE_INSTRUMENTO,attr"`
	TypeCode        string `xml:"IND_TIPO_INSTRUMENTO,attr"`
	Manufacturer    string `xml:"DSC_FABRICANTE,attr"`
	Model           string `xml:"DSC_MODELO,attr"`
	LimitLow        string `xml:"MED_LMT_INFOR,attr"`
	LimitHigh       string `xml:"MED_LMT_SUPR,attr"`
	LastCalibration string `xml:"DHA_ULT_CALIBRACAO,attr"`
	Uncertainty     string `xml:"MED_INCERTEZA_PADRAO,attr"`
}

type production struct {
	Start           string `xml:"DHA_INICIO_PERIODO_MEDICAO,attr"`
	End             string `xml:"DHA_FIM_PERIODO_MEDICAO,attr"`
	FlowDuration    string `xml:"PRZ_DURACAO_FLUXO_EFETIVO,attr"`
	GrossVolume     string `xml:"MED_VOLUME_BRUTO_CRRGO_MVMTAM,attr"`
	NetVolume       string `xml:"MED_VOLUME_LIQUIDO_MVMTAM,attr"`
	CorrectedVolume string `xml:"MED_CORRIGIDO_MVMDO,attr"`
	TotalizerStart  string `xml:"NUM_TTZDR_INIC_PRD_MVMTAM,attr"`
	TotalizerEnd    string `xml:"NUM_TTZDR_FINAL_PRD_MVMTAM,attr"`
	BSW             string `xml:"PCT_BSW,attr"`
	RelativeDensity string `xml:"ICE_DENSIDADE_RELATIVA,attr"`
	StaticPressure  string `xml:"MED_PRESSAO_ESTATICA,attr"`
	Temperature     string `xml:"MED_TEMPERATURA,attr"`
	DiffPressure    string `xml:"MED_DIFERENCIAL_PRESSAO,attr"`
	CTL             string `xml:"ICE_CTL,attr"`
	CPL             string `xml:"ICE_CPL,attr"`
	CTPL            string `xml:"ICE_CTPL,attr"`
	MeterFactor     string `xml:"ICE_METER_FACTOR,attr"`
}

type alarm struct {
	Timestamp string `xml:"DHA_ALARME,attr"`
	Parameter string `xml:"DSC_DADO_ALARMADO,attr"`
	Value     string `xml:"DSC_MEDIDA_ALARMADA,attr"`
}

type event struct {
	Timestamp string `xml:"DHA_OCORRENCIA_EVENTO,attr"`
	Parameter string `xml:"DSC_DADO_ALTERADO,attr"`
	OldValue  string `xml:"DSC_CONTEUDO_ORIGINAL,attr"`
	NewValue  string `xml:"DSC_CONTEUDO_ATUAL,attr"`
}
