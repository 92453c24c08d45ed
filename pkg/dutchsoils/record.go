package dutchsoils

// Record is one row of the combined soil profile table: one horizon of one
// profile together with its profile, BOFEK and Staring-series attributes.
// Profile-level fields repeat on every horizon of the profile.
type Record struct {
	ProfileIndex     int64   `csv:"normalsoilprofile_id"`
	SoilUnit         string  `csv:"soilunit"`
	ProfileName      string  `csv:"othersoilname"`
	BofekCluster     int     `csv:"bofekcluster"`
	BofekClusterName string  `csv:"bofekcluster_name"`
	Dominant         bool    `csv:"bofekcluster_dominant"`
	Area             Measure `csv:"area"` // profile area (ha)

	LayerNumber  int     `csv:"layernumber"`
	FAONotation  string  `csv:"faohorizonnotation"`
	ZTop         Measure `csv:"ztop"`    // m below surface
	ZBottom      Measure `csv:"zbottom"` // m below surface
	StaringBlock string  `csv:"staringseriesblock"`
	StaringName  string  `csv:"staringseriesname"`

	OrganicMatter    Measure `csv:"organicmattercontent"`
	OrganicMatter10p Measure `csv:"organicmattercontent10p"`
	OrganicMatter90p Measure `csv:"organicmattercontent90p"`
	Acidity          Measure `csv:"acidity"`
	Acidity10p       Measure `csv:"acidity10p"`
	Acidity90p       Measure `csv:"acidity90p"`
	CNRatio          Measure `csv:"cnratio"`
	PeatType         string  `csv:"peattype"`
	CalcicContent    Measure `csv:"calciccontent"`
	FeDith           Measure `csv:"fedith"`
	Loam             Measure `csv:"loamcontent"`
	Loam10p          Measure `csv:"loamcontent10p"`
	Loam90p          Measure `csv:"loamcontent90p"`
	Lutite           Measure `csv:"lutitecontent"`
	Lutite10p        Measure `csv:"lutitecontent10p"`
	Lutite90p        Measure `csv:"lutitecontent90p"`
	SandMedian       Measure `csv:"sandmedian"`
	SandMedian10p    Measure `csv:"sandmedian10p"`
	SandMedian90p    Measure `csv:"sandmedian90p"`
	Silt             Measure `csv:"siltcontent"`
	Density          Measure `csv:"density"`

	WCRes     Measure `csv:"wcres"`
	WCSat     Measure `csv:"wcsat"`
	VGMAlpha  Measure `csv:"vgmalpha"`
	VGMNPar   Measure `csv:"vgmnpar"`
	VGMLambda Measure `csv:"vgmlambda"`
	KSatFit   Measure `csv:"ksatfit"`
}

// measureFields maps the numeric column names to their Record fields.
var measureFields = map[string]func(*Record) *Measure{
	"area":                    func(r *Record) *Measure { return &r.Area },
	"ztop":                    func(r *Record) *Measure { return &r.ZTop },
	"zbottom":                 func(r *Record) *Measure { return &r.ZBottom },
	"organicmattercontent":    func(r *Record) *Measure { return &r.OrganicMatter },
	"organicmattercontent10p": func(r *Record) *Measure { return &r.OrganicMatter10p },
	"organicmattercontent90p": func(r *Record) *Measure { return &r.OrganicMatter90p },
	"acidity":                 func(r *Record) *Measure { return &r.Acidity },
	"acidity10p":              func(r *Record) *Measure { return &r.Acidity10p },
	"acidity90p":              func(r *Record) *Measure { return &r.Acidity90p },
	"cnratio":                 func(r *Record) *Measure { return &r.CNRatio },
	"calciccontent":           func(r *Record) *Measure { return &r.CalcicContent },
	"fedith":                  func(r *Record) *Measure { return &r.FeDith },
	"loamcontent":             func(r *Record) *Measure { return &r.Loam },
	"loamcontent10p":          func(r *Record) *Measure { return &r.Loam10p },
	"loamcontent90p":          func(r *Record) *Measure { return &r.Loam90p },
	"lutitecontent":           func(r *Record) *Measure { return &r.Lutite },
	"lutitecontent10p":        func(r *Record) *Measure { return &r.Lutite10p },
	"lutitecontent90p":        func(r *Record) *Measure { return &r.Lutite90p },
	"sandmedian":              func(r *Record) *Measure { return &r.SandMedian },
	"sandmedian10p":           func(r *Record) *Measure { return &r.SandMedian10p },
	"sandmedian90p":           func(r *Record) *Measure { return &r.SandMedian90p },
	"siltcontent":             func(r *Record) *Measure { return &r.Silt },
	"density":                 func(r *Record) *Measure { return &r.Density },
	"wcres":                   func(r *Record) *Measure { return &r.WCRes },
	"wcsat":                   func(r *Record) *Measure { return &r.WCSat },
	"vgmalpha":                func(r *Record) *Measure { return &r.VGMAlpha },
	"vgmnpar":                 func(r *Record) *Measure { return &r.VGMNPar },
	"vgmlambda":               func(r *Record) *Measure { return &r.VGMLambda },
	"ksatfit":                 func(r *Record) *Measure { return &r.KSatFit },
}

// NewRecord returns a record with every measure missing.
func NewRecord() Record {
	var r Record
	for _, f := range measureFields {
		*f(&r) = Missing()
	}
	return r
}

// SetMeasure sets the named numeric column. It reports false for names that
// are not numeric columns.
func (r *Record) SetMeasure(name string, v float64) bool {
	f, ok := measureFields[name]
	if !ok {
		return false
	}
	*f(r) = Measure(v)
	return true
}

// Value returns the named column as int, string, float64 or nil (missing
// measure). ok is false for unknown names.
func (r *Record) Value(name string) (v any, ok bool) {
	if f, found := measureFields[name]; found {
		return f(r).Value(), true
	}
	switch name {
	case "normalsoilprofile_id":
		return r.ProfileIndex, true
	case "soilunit":
		return r.SoilUnit, true
	case "othersoilname":
		return r.ProfileName, true
	case "bofekcluster":
		return r.BofekCluster, true
	case "bofekcluster_name":
		return r.BofekClusterName, true
	case "bofekcluster_dominant":
		return r.Dominant, true
	case "layernumber":
		return r.LayerNumber, true
	case "faohorizonnotation":
		return r.FAONotation, true
	case "staringseriesblock":
		return r.StaringBlock, true
	case "staringseriesname":
		return r.StaringName, true
	case "peattype":
		return r.PeatType, true
	}
	return nil, false
}

// hasStaring reports whether the horizon carries Staring-series parameters.
func (r *Record) hasStaring() bool {
	return r.StaringBlock != ""
}
