package businessflow

import (
	"log"
	"strings"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/shopspring/decimal"
)

// Documented placeholder values substituted when resolution leaves a required
// field unset. They keep non-production environments operable; any config
// carrying them reports ConfigStatusPlaceholder and IsComplete=false.
const (
	PlaceholderMerchantCode = "TESTMERCHANT"
	PlaceholderDeptID       = "000"
	PlaceholderServiceCode  = "TEST"
	PlaceholderDdoCode      = "TST-00-000"
	PlaceholderHead1        = "0000-00-000-00"
)

// Words carrying no routing signal in district or DDO office names
var ddoBoilerplateWords = map[string]struct{}{
	"district":   {},
	"office":     {},
	"of":         {},
	"the":        {},
	"tourism":    {},
	"department": {},
	"govt":       {},
	"government": {},
}

// GatewayDefaults is the compiled-in configuration layer, populated from the
// environment at startup
type GatewayDefaults struct {
	MerchantCode string
	DeptID       string
	ServiceCode  string
	DdoCode      string

	Head1         string
	Head1Percent  string
	Head2         string
	Head2Percent  string
	Head3         string
	Head3Percent  string
	Head4         string
	Head4Percent  string
	Head10        string
	Head10Percent string

	ReturnURL string
	KeyPath   string

	// DdoByDistrict routes the DDO code per district name
	DdoByDistrict map[string]string
}

// ResolveGatewayConfig merges the three configuration layers into one
// immutable per-transaction snapshot.
//
// Precedence, lowest to highest: compiled defaults, the persisted override
// record applied field-by-field, then district DDO routing. A non-blank
// override field replaces the default; a nil override field falls through.
// Secondary heads special-case the explicitly blank override: it clears the
// head even though the primary head default still applies.
//
// Resolution always succeeds. Missing required fields are substituted with
// documented placeholders and the snapshot reports IsComplete=false; callers
// must surface that rather than treat placeholder config as production-ready.
func ResolveGatewayConfig(defaults GatewayDefaults, override *models.GatewaySetting, district string) services.GatewayConfig {
	cfg := services.GatewayConfig{
		MerchantCode: mergeField(defaults.MerchantCode, overrideField(override, func(o *models.GatewaySetting) *string { return o.MerchantCode })),
		DeptID:       mergeField(defaults.DeptID, overrideField(override, func(o *models.GatewaySetting) *string { return o.DeptID })),
		ServiceCode:  mergeField(defaults.ServiceCode, overrideField(override, func(o *models.GatewaySetting) *string { return o.ServiceCode })),
		DdoCode:      mergeField(defaults.DdoCode, overrideField(override, func(o *models.GatewaySetting) *string { return o.DdoCode })),
		ReturnURL:    mergeField(defaults.ReturnURL, overrideField(override, func(o *models.GatewaySetting) *string { return o.ReturnURL })),
		KeyPath:      mergeField(defaults.KeyPath, overrideField(override, func(o *models.GatewaySetting) *string { return o.KeyPath })),
	}

	cfg.Heads = resolveHeads(defaults, override)

	if ddo, ok := lookupDistrictDdo(defaults.DdoByDistrict, district); ok {
		cfg.DdoCode = ddo
	}

	complete := cfg.MerchantCode != "" &&
		cfg.DeptID != "" &&
		cfg.ServiceCode != "" &&
		cfg.DdoCode != "" &&
		len(cfg.Heads) > 0

	cfg.IsComplete = complete
	switch {
	case !complete:
		cfg.ConfigStatus = services.ConfigStatusPlaceholder
		substitutePlaceholders(&cfg)
	case overrideContributed(override):
		cfg.ConfigStatus = services.ConfigStatusOverride
	default:
		cfg.ConfigStatus = services.ConfigStatusProduction
	}

	return cfg
}

// headSpec pairs a wire slot with its default and override accessors
type headSpec struct {
	slot            int
	defCode         string
	defPercent      string
	overrideCode    func(*models.GatewaySetting) *string
	overridePercent func(*models.GatewaySetting) *string
}

func resolveHeads(defaults GatewayDefaults, override *models.GatewaySetting) []services.BudgetHead {
	specs := []headSpec{
		{1, defaults.Head1, defaults.Head1Percent,
			func(o *models.GatewaySetting) *string { return o.Head1 },
			func(o *models.GatewaySetting) *string { return o.Head1Percent }},
		{2, defaults.Head2, defaults.Head2Percent,
			func(o *models.GatewaySetting) *string { return o.Head2 },
			func(o *models.GatewaySetting) *string { return o.Head2Percent }},
		{3, defaults.Head3, defaults.Head3Percent,
			func(o *models.GatewaySetting) *string { return o.Head3 },
			func(o *models.GatewaySetting) *string { return o.Head3Percent }},
		{4, defaults.Head4, defaults.Head4Percent,
			func(o *models.GatewaySetting) *string { return o.Head4 },
			func(o *models.GatewaySetting) *string { return o.Head4Percent }},
		{10, defaults.Head10, defaults.Head10Percent,
			func(o *models.GatewaySetting) *string { return o.Head10 },
			func(o *models.GatewaySetting) *string { return o.Head10Percent }},
	}

	heads := make([]services.BudgetHead, 0, len(specs))
	for _, spec := range specs {
		code := spec.defCode
		if ov := overrideField(override, spec.overrideCode); ov != nil {
			if *ov == "" && spec.slot != 1 {
				// Explicitly blanked secondary head: cleared, the default does
				// not fall through.
				continue
			}
			if *ov != "" {
				code = *ov
			}
		}
		if code == "" {
			continue
		}

		percent := spec.defPercent
		if ov := overrideField(override, spec.overridePercent); ov != nil && *ov != "" {
			percent = *ov
		}
		if percent == "" && spec.slot == 1 {
			percent = "100"
		}

		pct, err := decimal.NewFromString(percent)
		if err != nil {
			log.Printf("Skipping budget head %d: unparseable percent %q", spec.slot, percent)
			continue
		}

		heads = append(heads, services.BudgetHead{Slot: spec.slot, Code: code, Percent: pct})
	}
	return heads
}

// lookupDistrictDdo routes the DDO code by district name: exact match first,
// then a normalized token-overlap match against each routing entry.
func lookupDistrictDdo(routing map[string]string, district string) (string, bool) {
	if district == "" || len(routing) == 0 {
		return "", false
	}

	if ddo, ok := routing[district]; ok {
		return ddo, true
	}

	want := districtTokens(district)
	if len(want) == 0 {
		return "", false
	}

	bestOverlap := 0
	bestDdo := ""
	for name, ddo := range routing {
		overlap := 0
		for token := range districtTokens(name) {
			if _, ok := want[token]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			bestDdo = ddo
		}
	}

	if bestOverlap == 0 {
		return "", false
	}
	return bestDdo, true
}

// districtTokens normalizes a district or office name into its significant
// tokens, stripping punctuation and organizational boilerplate
func districtTokens(name string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, strings.ToLower(name))

	tokens := map[string]struct{}{}
	for _, token := range strings.Fields(cleaned) {
		if _, boilerplate := ddoBoilerplateWords[token]; boilerplate {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

func mergeField(def string, override *string) string {
	if override != nil && *override != "" {
		return *override
	}
	return def
}

func overrideField(override *models.GatewaySetting, get func(*models.GatewaySetting) *string) *string {
	if override == nil {
		return nil
	}
	return get(override)
}

func overrideContributed(override *models.GatewaySetting) bool {
	if override == nil {
		return false
	}
	fields := []*string{
		override.MerchantCode, override.DeptID, override.ServiceCode, override.DdoCode,
		override.Head1, override.Head1Percent, override.Head2, override.Head2Percent,
		override.Head3, override.Head3Percent, override.Head4, override.Head4Percent,
		override.Head10, override.Head10Percent, override.ReturnURL, override.KeyPath,
	}
	for _, f := range fields {
		if f != nil {
			return true
		}
	}
	return false
}

func substitutePlaceholders(cfg *services.GatewayConfig) {
	if cfg.MerchantCode == "" {
		cfg.MerchantCode = PlaceholderMerchantCode
	}
	if cfg.DeptID == "" {
		cfg.DeptID = PlaceholderDeptID
	}
	if cfg.ServiceCode == "" {
		cfg.ServiceCode = PlaceholderServiceCode
	}
	if cfg.DdoCode == "" {
		cfg.DdoCode = PlaceholderDdoCode
	}
	if len(cfg.Heads) == 0 {
		cfg.Heads = []services.BudgetHead{{Slot: 1, Code: PlaceholderHead1, Percent: decimal.NewFromInt(100)}}
	}
}
