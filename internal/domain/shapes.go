package domain

// Shape identifies the report family of an ingested file.
type Shape string

const (
	ShapeSpreadsheetDailyOil   Shape = "SPREADSHEET_DAILY_OIL"
	ShapeSpreadsheetDailyGas   Shape = "SPREADSHEET_DAILY_GAS"
	ShapeSpreadsheetDailyWater Shape = "SPREADSHEET_DAILY_WATER"
	ShapeSpreadsheetGasBalance Shape = "SPREADSHEET_GAS_BALANCE"
	ShapeMPFMHourly            Shape = "MPFM_HOURLY"
	ShapeMPFMDaily             Shape = "MPFM_DAILY"
	ShapeMPFMPVTCalibration    Shape = "MPFM_PVT_CALIBRATION"
	ShapeXML001                Shape = "XML_001"
	ShapeXML002                Shape = "XML_002"
	ShapeXML003                Shape = "XML_003"
	ShapeXML004                Shape = "XML_004"
	ShapeBatchArchive          Shape = "BATCH_ARCHIVE"
	ShapeUnknown               Shape = "UNKNOWN"
)

// IsSpreadsheet reports whether the shape is parsed by the spreadsheet parser.
func (s Shape) IsSpreadsheet() bool {
	switch s {
	case ShapeSpreadsheetDailyOil, ShapeSpreadsheetDailyGas, ShapeSpreadsheetDailyWater, ShapeSpreadsheetGasBalance:
		return true
	}
	return false
}

// IsMPFM reports whether the shape is an MPFM report variant.
func (s Shape) IsMPFM() bool {
	switch s {
	case ShapeMPFMHourly, ShapeMPFMDaily, ShapeMPFMPVTCalibration:
		return true
	}
	return false
}

// IsXML reports whether the shape is a regulator XML submission.
func (s Shape) IsXML() bool {
	switch s {
	case ShapeXML001, ShapeXML002, ShapeXML003, ShapeXML004:
		return true
	}
	return false
}

// Source classifies the origin of a cross-validation observation.
// PDF and TXT MPFM dumps are distinct sources: the same report may arrive
// in both forms and disagreeing values must surface.
type Source string

const (
	SourceSpreadsheet Source = "spreadsheet"
	SourceXML         Source = "xml"
	SourcePDF         Source = "pdf"
	SourceTXT         Source = "txt"
)

// ParseStatus is the lifecycle state of a staged file.
type ParseStatus string

const (
	ParsePending ParseStatus = "PENDING"
	ParseSuccess ParseStatus = "SUCCESS"
	ParsePartial ParseStatus = "PARTIAL"
	ParseFailed  ParseStatus = "FAILED"
)

// BatchStatus is the lifecycle state of a batch submission.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// ReportType distinguishes the two MPFM production grains.
type ReportType string

const (
	ReportHourly ReportType = "HOURLY"
	ReportDaily  ReportType = "DAILY"
)

// AssetKind categorizes a measuring point.
type AssetKind string

const (
	KindTopside   AssetKind = "TOPSIDE"
	KindSubsea    AssetKind = "SUBSEA"
	KindSeparator AssetKind = "SEPARATOR"
	KindMPFM      AssetKind = "MPFM"
)
