package regxml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

func writeSubmission(t *testing.T, name, content string) parse.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return parse.File{Path: path, Name: name}
}

const oilSubmission = `<?xml version="1.0" encoding="UTF-8"?>
<a001>
  <LISTA_DADOS_BASICOS>
    <DADOS_BASICOS COD_INSTALACAO="P-71" COD_TAG_PONTO_MEDICAO="13FT0367" NUM_SERIE_ELEMENTO_PRIMARIO="EP-991" NUM_SERIE_COMPUTADOR_VAZAO="FC-104">
      <LISTA_CONFIGURACAO_CV>
        <CONFIGURACAO_CV DHA_COLETA="01/05/2024 06:00:00" MED_TEMPERATURA="25,4" MED_PRESSAO_ATMSA="101,325" MED_PRESSAO_RFRNA="101,325" MED_DENSIDADE_RELATIVA="0,843" DSC_VERSAO_SOFTWARE="FC 2.1.0"/>
      </LISTA_CONFIGURACAO_CV>
      <LISTA_ELEMENTO_PRIMARIO>
        <ELEMENTO_PRIMARIO ICE_METER_FACTOR_1="1,0012" QTD_PULSOS_METER_FACTOR_1="152000" ICE_METER_FACTOR_2="1,0018" QTD_PULSOS_METER_FACTOR_2="304000"/>
      </LISTA_ELEMENTO_PRIMARIO>
      <LISTA_INSTRUMENTO_PRESSAO>
        <INSTRUMENTO_PRESSAO NUM_SERIE_INSTRUMENTO="PT-201" IND_TIPO_INSTRUMENTO="1" DSC_FABRICANTE="Rosemount" DSC_MODELO="3051S" MED_LMT_INFOR="0" MED_LMT_SUPR="25000" DHA_ULT_CALIBRACAO="12/03/2024" MED_INCERTEZA_PADRAO="0,05"/>
      </LISTA_INSTRUMENTO_PRESSAO>
      <LISTA_INSTRUMENTO_TEMPERATURA>
        <INSTRUMENTO_TEMPERATURA NUM_SERIE_INSTRUMENTO="TT-305" DSC_FABRICANTE="WIKA" DSC_MODELO="TR10" MED_LMT_INFOR="-20" MED_LMT_SUPR="150" DHA_ULT_CALIBRACAO="20/02/2024" MED_INCERTEZA_PADRAO="0,1"/>
      </LISTA_INSTRUMENTO_TEMPERATURA>
      <LISTA_PRODUCAO>
        <PRODUCAO DHA_INICIO_PERIODO_MEDICAO="01/05/2024 00:00:00" DHA_FIM_PERIODO_MEDICAO="02/05/2024 00:00:00" PRZ_DURACAO_FLUXO_EFETIVO="24,00" MED_VOLUME_BRUTO_CRRGO_MVMTAM="1523,40" MED_VOLUME_LIQUIDO_MVMTAM="1498,70" MED_CORRIGIDO_MVMDO="1490,20" NUM_TTZDR_INIC_PRD_MVMTAM="885210,5" NUM_TTZDR_FINAL_PRD_MVMTAM="886733,9" PCT_BSW="1,62" ICE_DENSIDADE_RELATIVA="0,843" MED_PRESSAO_ESTATICA="5230,0" MED_TEMPERATURA="62,3" ICE_CTL="0,9812" ICE_CPL="1,0021" ICE_CTPL="0,9833" ICE_METER_FACTOR="1,0012"/>
      </LISTA_PRODUCAO>
    </DADOS_BASICOS>
  </LISTA_DADOS_BASICOS>
</a001>`

func TestParseOilSubmission(t *testing.T) {
	file := writeSubmission(t, "001_12345678_20240502060000_P-71.xml", oilSubmission)
	file.Shape = domain.ShapeXML001

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Empty(t, out.Warnings)
	require.Len(t, out.Records, 1)

	rec, ok := out.Records[0].(*parse.RegulatoryRecord)
	require.True(t, ok)

	assert.Equal(t, domain.ShapeXML001, rec.XMLShape)
	assert.Equal(t, "P-71", rec.Installation)
	assert.Equal(t, "13FT0367", rec.AssetTag)
	assert.Equal(t, "EP-991", rec.PrimarySerial)
	assert.Equal(t, "FC-104", rec.ComputerSerial)
	assert.Equal(t, "12345678", rec.CNPJ8)
	assert.Equal(t, time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC), rec.GeneratedAt)

	require.NotNil(t, rec.Config)
	assert.Equal(t, time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), rec.Config.CollectedAt)
	require.NotNil(t, rec.Config.AmbientTemperatureC)
	assert.InDelta(t, 25.4, *rec.Config.AmbientTemperatureC, 1e-9)
	require.NotNil(t, rec.Config.RelativeDensity)
	assert.InDelta(t, 0.843, *rec.Config.RelativeDensity, 1e-9)
	assert.Equal(t, "FC 2.1.0", rec.Config.SoftwareVersion)

	require.Len(t, rec.MeterFactors, 2)
	assert.Equal(t, 1, rec.MeterFactors[0].Index)
	require.NotNil(t, rec.MeterFactors[0].Factor)
	assert.InDelta(t, 1.0012, *rec.MeterFactors[0].Factor, 1e-9)
	require.NotNil(t, rec.MeterFactors[1].Pulses)
	assert.InDelta(t, 304000, *rec.MeterFactors[1].Pulses, 1e-9)

	require.Len(t, rec.Instruments, 2)
	pressure := rec.Instruments[0]
	assert.Equal(t, "pressure", pressure.Kind)
	assert.Equal(t, "PT-201", pressure.Serial)
	assert.Equal(t, "Rosemount", pressure.Manufacturer)
	require.NotNil(t, pressure.LimitHigh)
	assert.InDelta(t, 25000, *pressure.LimitHigh, 1e-9)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), pressure.LastCalibration)
	temperature := rec.Instruments[1]
	assert.Equal(t, "temperature", temperature.Kind)
	require.NotNil(t, temperature.LimitLow)
	assert.InDelta(t, -20, *temperature.LimitLow, 1e-9)

	require.Len(t, rec.Periods, 1)
	period := rec.Periods[0]
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), period.Start)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), period.End)
	require.NotNil(t, period.FlowDurationHours)
	assert.InDelta(t, 24.0, *period.FlowDurationHours, 1e-9)
	require.NotNil(t, period.GrossVolumeM3)
	assert.InDelta(t, 1523.40, *period.GrossVolumeM3, 1e-9)
	require.NotNil(t, period.BSWPct)
	assert.InDelta(t, 1.62, *period.BSWPct, 1e-9)
	require.NotNil(t, period.CTL)
	assert.InDelta(t, 0.9812, *period.CTL, 1e-9)
	require.NotNil(t, period.TotalizerEnd)
	assert.InDelta(t, 886733.9, *period.TotalizerEnd, 1e-9)
	assert.Nil(t, period.DiffPressureKPa)
}

const alarmSubmission = `<?xml version="1.0" encoding="UTF-8"?>
<a004>
  <LISTA_DADOS_BASICOS>
    <DADOS_BASICOS COD_INSTALACAO="P-71" COD_TAG_PONTO_MEDICAO="13FT0367">
      <LISTA_ALARME>
        <ALARME DHA_ALARME="01/05/2024 03:12:44" DSC_DADO_ALARMADO="MED_PRESSAO_ESTATICA" DSC_MEDIDA_ALARMADA="5890,2"/>
        <ALARME DHA_ALARME="01/05/2024 03:14:02" DSC_DADO_ALARMADO="MED_TEMPERATURA" DSC_MEDIDA_ALARMADA="88,1"/>
      </LISTA_ALARME>
      <LISTA_EVENTO>
        <EVENTO DHA_OCORRENCIA_EVENTO="01/05/2024 09:30:00" DSC_DADO_ALTERADO="MED_DENSIDADE_RELATIVA" DSC_CONTEUDO_ORIGINAL="0,845" DSC_CONTEUDO_ATUAL="0,843"/>
      </LISTA_EVENTO>
    </DADOS_BASICOS>
  </LISTA_DADOS_BASICOS>
</a004>`

func TestParseAlarmSubmission(t *testing.T) {
	file := writeSubmission(t, "004_12345678_20240502060000_P-71.xml", alarmSubmission)
	file.Shape = domain.ShapeXML004

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)

	rec, ok := out.Records[0].(*parse.AlarmRecord)
	require.True(t, ok)

	assert.Equal(t, "P-71", rec.Installation)
	assert.Equal(t, "13FT0367", rec.AssetTag)

	require.Len(t, rec.Alarms, 2)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 12, 44, 0, time.UTC), rec.Alarms[0].Timestamp)
	assert.Equal(t, "MED_PRESSAO_ESTATICA", rec.Alarms[0].Parameter)
	assert.Equal(t, "5890,2", rec.Alarms[0].Value)

	require.Len(t, rec.Events, 1)
	assert.Equal(t, "MED_DENSIDADE_RELATIVA", rec.Events[0].Parameter)
	assert.Equal(t, "0,845", rec.Events[0].OldValue)
	assert.Equal(t, "0,843", rec.Events[0].NewValue)
}

func TestParseLatin1Submission(t *testing.T) {
	content := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<a002><LISTA_DADOS_BASICOS>" +
		"<DADOS_BASICOS COD_INSTALACAO=\"PETR\xd3POLIS\" COD_TAG_PONTO_MEDICAO=\"13FT0401\"/>" +
		"</LISTA_DADOS_BASICOS></a002>"
	file := writeSubmission(t, "002_12345678_20240502060000_X.xml", content)
	file.Shape = domain.ShapeXML002

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)
	rec := out.Records[0].(*parse.RegulatoryRecord)
	assert.Equal(t, "PETRÓPOLIS", rec.Installation)
}

func TestParseMalformedXML(t *testing.T) {
	file := writeSubmission(t, "001_12345678_20240502060000_P-71.xml", "<a001><unclosed>")
	file.Shape = domain.ShapeXML001

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	assert.False(t, out.Success)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "malformed xml")
}

func TestParseEmptySubmission(t *testing.T) {
	file := writeSubmission(t, "001_12345678_20240502060000_P-71.xml", "<a001><LISTA_DADOS_BASICOS/></a001>")
	file.Shape = domain.ShapeXML001

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	assert.False(t, out.Success)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "DADOS_BASICOS")
}

func TestParseWarnsOnBadNumerics(t *testing.T) {
	content := `<a003><LISTA_DADOS_BASICOS><DADOS_BASICOS COD_TAG_PONTO_MEDICAO="13FT0367">
<LISTA_PRODUCAO><PRODUCAO DHA_INICIO_PERIODO_MEDICAO="01/05/2024 00:00:00" DHA_FIM_PERIODO_MEDICAO="02/05/2024 00:00:00" PCT_BSW="abc"/></LISTA_PRODUCAO>
</DADOS_BASICOS></LISTA_DADOS_BASICOS></a003>`
	file := writeSubmission(t, "003_12345678_20240502060000_P-71.xml", content)
	file.Shape = domain.ShapeXML003

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)
	rec := out.Records[0].(*parse.RegulatoryRecord)
	require.Len(t, rec.Periods, 1)
	assert.Nil(t, rec.Periods[0].BSWPct)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "PCT_BSW")
}

func TestShapeFromRootFallback(t *testing.T) {
	content := `<a002><LISTA_DADOS_BASICOS><DADOS_BASICOS COD_TAG_PONTO_MEDICAO="13FT0401"/></LISTA_DADOS_BASICOS></a002>`
	file := writeSubmission(t, "meter-dump.xml", content)

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)
	assert.Equal(t, domain.ShapeXML002, out.Records[0].(*parse.RegulatoryRecord).XMLShape)
}

func TestParseFilenameMetadata(t *testing.T) {
	cases := []struct {
		name string
		file string
		ok   bool
		meta fileMeta
	}{
		{
			name: "canonical",
			file: "001_12345678_20240502060000_P-71.xml",
			ok:   true,
			meta: fileMeta{
				shape:        domain.ShapeXML001,
				cnpj8:        "12345678",
				generatedAt:  time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC),
				installation: "P-71",
			},
		},
		{
			name: "installation with underscores",
			file: "004_87654321_20240101000000_FPSO_NORTE.xml",
			ok:   true,
			meta: fileMeta{
				shape:        domain.ShapeXML004,
				cnpj8:        "87654321",
				generatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				installation: "FPSO_NORTE",
			},
		},
		{name: "not a submission", file: "report.xml", ok: false},
		{name: "wrong digit groups", file: "01_1234_20240101_X.xml", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, ok := parseFilename(tc.file)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.meta, meta)
			}
		})
	}
}
