package regxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// Parser decodes regulator flow-measurement submissions. Shapes 001 (oil),
// 002 (gas, linear meters) and 003 (gas, differential meters) carry
// production periods plus flow-computer configuration, meter-factor curves
// and instrument inventories; shape 004 carries alarms and configuration
// audit events.
type Parser struct{}

func New() *Parser { return &Parser{} }

// meterFactorPoints is the fixed length of the primary-element curve.
const meterFactorPoints = 12

var reFilename = regexp.MustCompile(`(?i)^(\d{3})_(\d{8})_(\d{14})_(.+)\.xml$`)

// fileMeta is header metadata recovered from the submission filename.
type fileMeta struct {
	shape        domain.Shape
	cnpj8        string
	generatedAt  time.Time
	installation string
}

func parseFilename(name string) (fileMeta, bool) {
	m := reFilename.FindStringSubmatch(name)
	if m == nil {
		return fileMeta{}, false
	}
	meta := fileMeta{
		shape:        domain.Shape("XML_" + m[1]),
		cnpj8:        m[2],
		installation: m[4],
	}
	if ts, err := time.Parse("20060102150405", m[3]); err == nil {
		meta.generatedAt = ts
	}
	return meta, true
}

// charsetReader accepts the encodings the regulator actually emits. UTF-8
// documents never reach it; the decoder only calls it for labelled ones.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "iso8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported xml charset %q", charset)
	}
}

func (p *Parser) Parse(ctx context.Context, file parse.File) (parse.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return parse.Outcome{}, err
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return parse.Outcome{}, fmt.Errorf("open submission %s: %w", file.Path, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	dec.CharsetReader = charsetReader

	var doc document
	out := parse.Outcome{Success: true}
	if err := dec.Decode(&doc); err != nil {
		out.Fail(fmt.Sprintf("malformed xml: %v", err))
		return out, nil
	}

	meta, _ := parseFilename(file.Name)
	shape := file.Shape
	if !shape.IsXML() {
		shape = meta.shape
	}
	if !shape.IsXML() {
		shape = shapeFromRoot(doc.XMLName.Local)
	}
	if !shape.IsXML() {
		out.Fail(fmt.Sprintf("cannot determine submission shape for %s", file.Name))
		return out, nil
	}

	if len(doc.List.Items) == 0 {
		out.Fail("submission without DADOS_BASICOS elements")
		return out, nil
	}

	for i := range doc.List.Items {
		item := &doc.List.Items[i]
		if shape == domain.ShapeXML004 {
			out.Records = append(out.Records, p.alarmRecord(item, meta, &out))
		} else {
			out.Records = append(out.Records, p.productionRecord(item, shape, meta, &out))
		}
	}
	return out, nil
}

// shapeFromRoot recovers the shape from root elements like a001 or A003.
func shapeFromRoot(root string) domain.Shape {
	lower := strings.ToLower(root)
	if len(lower) == 4 && lower[0] == 'a' {
		switch lower[1:] {
		case "001", "002", "003", "004":
			return domain.Shape("XML_" + lower[1:])
		}
	}
	return domain.ShapeUnknown
}

func (p *Parser) productionRecord(item *basicData, shape domain.Shape, meta fileMeta, out *parse.Outcome) *parse.RegulatoryRecord {
	rec := &parse.RegulatoryRecord{
		XMLShape:       shape,
		Installation:   firstNonEmpty(item.Installation, meta.installation),
		AssetTag:       item.Tag,
		PrimarySerial:  item.PrimarySerial,
		ComputerSerial: item.ComputerSerial,
		CNPJ8:          meta.cnpj8,
		GeneratedAt:    meta.generatedAt,
	}

	if len(item.Configs) > 0 {
		rec.Config = p.config(&item.Configs[0], out)
		if len(item.Configs) > 1 {
			out.Warn(fmt.Sprintf("%s: %d CONFIGURACAO_CV elements, using the first", item.Tag, len(item.Configs)))
		}
	}
	for i := range item.PrimaryElements {
		rec.MeterFactors = append(rec.MeterFactors, p.meterFactors(&item.PrimaryElements[i], out)...)
	}
	for i := range item.PressureInst {
		rec.Instruments = append(rec.Instruments, p.instrument(&item.PressureInst[i], "pressure", out))
	}
	for i := range item.TemperatureInst {
		rec.Instruments = append(rec.Instruments, p.instrument(&item.TemperatureInst[i], "temperature", out))
	}
	for i := range item.Production {
		rec.Periods = append(rec.Periods, p.period(&item.Production[i], item.Tag, out))
	}
	return rec
}

func (p *Parser) alarmRecord(item *basicData, meta fileMeta, out *parse.Outcome) *parse.AlarmRecord {
	rec := &parse.AlarmRecord{
		Installation: firstNonEmpty(item.Installation, meta.installation),
		AssetTag:     item.Tag,
	}
	for _, a := range item.Alarms {
		rec.Alarms = append(rec.Alarms, parse.AlarmEvent{
			Timestamp: p.date(a.Timestamp, "DHA_ALARME", out),
			Parameter: a.Parameter,
			Value:     a.Value,
		})
	}
	for _, e := range item.Events {
		rec.Events = append(rec.Events, parse.AuditEvent{
			Timestamp: p.date(e.Timestamp, "DHA_OCORRENCIA_EVENTO", out),
			Parameter: e.Parameter,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
		})
	}
	return rec
}

func (p *Parser) config(c *flowComputerConfig, out *parse.Outcome) *parse.FlowComputerConfig {
	return &parse.FlowComputerConfig{
		CollectedAt:         p.date(c.CollectedAt, "DHA_COLETA", out),
		AmbientTemperatureC: p.num(c.Temperature, "MED_TEMPERATURA", out),
		AtmosphericKPa:      p.num(c.AtmosphericKPa, "MED_PRESSAO_ATMSA", out),
		ReferenceKPa:        p.num(c.ReferenceKPa, "MED_PRESSAO_RFRNA", out),
		RelativeDensity:     p.num(c.RelativeDensity, "MED_DENSIDADE_RELATIVA", out),
		SoftwareVersion:     c.SoftwareVersion,
	}
}

// meterFactors walks the indexed attribute pairs of one primary element.
// Slots the element does not state are skipped, not zero-filled.
func (p *Parser) meterFactors(el *primaryElement, out *parse.Outcome) []parse.MeterFactorPoint {
	attrs := make(map[string]string, len(el.Attrs))
	for _, a := range el.Attrs {
		attrs[a.Name.Local] = a.Value
	}
	var points []parse.MeterFactorPoint
	for i := 1; i <= meterFactorPoints; i++ {
		factorKey := fmt.Sprintf("ICE_METER_FACTOR_%d", i)
		pulsesKey := fmt.Sprintf("QTD_PULSOS_METER_FACTOR_%d", i)
		factorRaw, hasFactor := attrs[factorKey]
		pulsesRaw, hasPulses := attrs[pulsesKey]
		if !hasFactor && !hasPulses {
			continue
		}
		point := parse.MeterFactorPoint{Index: i}
		if hasFactor {
			point.Factor = p.num(factorRaw, factorKey, out)
		}
		if hasPulses {
			point.Pulses = p.num(pulsesRaw, pulsesKey, out)
		}
		points = append(points, point)
	}
	return points
}

func (p *Parser) instrument(in *instrument, kind string, out *parse.Outcome) parse.Instrument {
	return parse.Instrument{
		Kind:            kind,
		Serial:          in.Serial,
		TypeCode:        in.TypeCode,
		Manufacturer:    in.Manufacturer,
		Model:           in.Model,
		LimitLow:        p.num(in.LimitLow, "MED_LMT_INFOR", out),
		LimitHigh:       p.num(in.LimitHigh, "MED_LMT_SUPR", out),
		LastCalibration: p.date(in.LastCalibration, "DHA_ULT_CALIBRACAO", out),
		Uncertainty:     p.num(in.Uncertainty, "MED_INCERTEZA_PADRAO", out),
	}
}

func (p *Parser) period(pr *production, tag string, out *parse.Outcome) parse.ProductionPeriod {
	period := parse.ProductionPeriod{
		Start:             p.date(pr.Start, "DHA_INICIO_PERIODO_MEDICAO", out),
		End:               p.date(pr.End, "DHA_FIM_PERIODO_MEDICAO", out),
		FlowDurationHours: p.num(pr.FlowDuration, "PRZ_DURACAO_FLUXO_EFETIVO", out),
		GrossVolumeM3:     p.num(pr.GrossVolume, "MED_VOLUME_BRUTO_CRRGO_MVMTAM", out),
		NetVolumeM3:       p.num(pr.NetVolume, "MED_VOLUME_LIQUIDO_MVMTAM", out),
		CorrectedVolumeM3: p.num(pr.CorrectedVolume, "MED_CORRIGIDO_MVMDO", out),
		TotalizerStart:    p.num(pr.TotalizerStart, "NUM_TTZDR_INIC_PRD_MVMTAM", out),
		TotalizerEnd:      p.num(pr.TotalizerEnd, "NUM_TTZDR_FINAL_PRD_MVMTAM", out),
		BSWPct:            p.num(pr.BSW, "PCT_BSW", out),
		RelativeDensity:   p.num(pr.RelativeDensity, "ICE_DENSIDADE_RELATIVA", out),
		StaticPressureKPa: p.num(pr.StaticPressure, "MED_PRESSAO_ESTATICA", out),
		TemperatureC:      p.num(pr.Temperature, "MED_TEMPERATURA", out),
		DiffPressureKPa:   p.num(pr.DiffPressure, "MED_DIFERENCIAL_PRESSAO", out),
		CTL:               p.num(pr.CTL, "ICE_CTL", out),
		CPL:               p.num(pr.CPL, "ICE_CPL", out),
		CTPL:              p.num(pr.CTPL, "ICE_CTPL", out),
		MeterFactor:       p.num(pr.MeterFactor, "ICE_METER_FACTOR", out),
	}
	if period.End.IsZero() {
		out.Warn(fmt.Sprintf("%s: production period without end timestamp", tag))
	}
	return period
}

// num converts a comma-decimal attribute. Absent attributes are nil without
// complaint; malformed ones are nil with a warning.
func (p *Parser) num(raw, attr string, out *parse.Outcome) *float64 {
	v, ok := parse.Number(raw)
	if !ok {
		out.Warn(fmt.Sprintf("unparseable %s value %q", attr, raw))
		return nil
	}
	return v
}

func (p *Parser) date(raw, attr string, out *parse.Outcome) time.Time {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}
	}
	ts, ok := parse.RegulatorDate(raw)
	if !ok {
		out.Warn(fmt.Sprintf("unparseable %s timestamp %q", attr, raw))
		return time.Time{}
	}
	return ts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
