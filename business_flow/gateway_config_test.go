package businessflow

import (
	"testing"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productionDefaults() GatewayDefaults {
	return GatewayDefaults{
		MerchantCode: "HPTSM01",
		DeptID:       "233",
		ServiceCode:  "TSM",
		DdoCode:      "SML-00-037",
		Head1:        "1452-00-800-01",
		Head1Percent: "100",
		Head2:        "0070-60-800-11",
		Head2Percent: "0",
		ReturnURL:    "https://tourism.example.gov.in/api/v1/payments/callback",
		KeyPath:      "/etc/treasury/gateway.key",
		DdoByDistrict: map[string]string{
			"Shimla": "SML-00-037",
			"Kullu":  "KLU-00-012",
			"Kangra": "KNG-00-008",
			"Chamba": "CHM-00-019",
		},
	}
}

func TestResolveGatewayConfig_DefaultsOnly(t *testing.T) {
	cfg := ResolveGatewayConfig(productionDefaults(), nil, "")

	assert.True(t, cfg.IsComplete)
	assert.Equal(t, services.ConfigStatusProduction, cfg.ConfigStatus)
	assert.Equal(t, "HPTSM01", cfg.MerchantCode)
	assert.Equal(t, "SML-00-037", cfg.DdoCode)

	head1, ok := cfg.Head(1)
	require.True(t, ok)
	assert.Equal(t, "1452-00-800-01", head1.Code)
	assert.True(t, decimal.NewFromInt(100).Equal(head1.Percent))
}

func TestResolveGatewayConfig_TertiaryHeadDefaults(t *testing.T) {
	defaults := productionDefaults()
	defaults.Head1Percent = "90"
	defaults.Head3 = "8443-00-108-03"
	defaults.Head3Percent = "10"

	cfg := ResolveGatewayConfig(defaults, nil, "")

	head3, ok := cfg.Head(3)
	require.True(t, ok)
	assert.Equal(t, "8443-00-108-03", head3.Code)
	assert.True(t, decimal.NewFromInt(10).Equal(head3.Percent))
}

func TestResolveGatewayConfig_HeadWithoutPercentSkipped(t *testing.T) {
	defaults := productionDefaults()
	defaults.Head3 = "8443-00-108-03"
	// No percent configured for the tertiary head.

	cfg := ResolveGatewayConfig(defaults, nil, "")

	_, ok := cfg.Head(3)
	assert.False(t, ok)
}

func TestResolveGatewayConfig_OverrideFieldByField(t *testing.T) {
	override := &models.GatewaySetting{
		Name:         utils.GatewaySettingName,
		MerchantCode: utils.ToPtr("HPTSM02"),
		// DeptID nil: falls through to the default.
		ServiceCode: utils.ToPtr(""),
	}

	cfg := ResolveGatewayConfig(productionDefaults(), override, "")

	assert.Equal(t, services.ConfigStatusOverride, cfg.ConfigStatus)
	assert.True(t, cfg.IsComplete)
	assert.Equal(t, "HPTSM02", cfg.MerchantCode)
	assert.Equal(t, "233", cfg.DeptID)
	// Blank scalar override falls through to the default.
	assert.Equal(t, "TSM", cfg.ServiceCode)
}

func TestResolveGatewayConfig_BlankSecondaryHeadClears(t *testing.T) {
	defaults := productionDefaults()
	defaults.Head2 = "0070-60-800-11"
	defaults.Head2Percent = "10"

	override := &models.GatewaySetting{
		Name:  utils.GatewaySettingName,
		Head2: utils.ToPtr(""),
	}

	cfg := ResolveGatewayConfig(defaults, override, "")

	_, hasHead2 := cfg.Head(2)
	assert.False(t, hasHead2)
	// Primary head default still applies.
	head1, ok := cfg.Head(1)
	require.True(t, ok)
	assert.Equal(t, "1452-00-800-01", head1.Code)
}

func TestResolveGatewayConfig_BlankPrimaryHeadFallsThrough(t *testing.T) {
	override := &models.GatewaySetting{
		Name:  utils.GatewaySettingName,
		Head1: utils.ToPtr(""),
	}

	cfg := ResolveGatewayConfig(productionDefaults(), override, "")

	head1, ok := cfg.Head(1)
	require.True(t, ok)
	assert.Equal(t, "1452-00-800-01", head1.Code)
}

func TestResolveGatewayConfig_DistrictExactMatch(t *testing.T) {
	cfg := ResolveGatewayConfig(productionDefaults(), nil, "Kullu")
	assert.Equal(t, "KLU-00-012", cfg.DdoCode)
}

func TestResolveGatewayConfig_DistrictTokenOverlapMatch(t *testing.T) {
	cfg := ResolveGatewayConfig(productionDefaults(), nil, "Office of the District Tourism Department, Kangra")
	assert.Equal(t, "KNG-00-008", cfg.DdoCode)
}

func TestResolveGatewayConfig_DistrictUnknownKeepsResolvedDdo(t *testing.T) {
	cfg := ResolveGatewayConfig(productionDefaults(), nil, "Lahaul and Spiti")
	assert.Equal(t, "SML-00-037", cfg.DdoCode)
}

func TestResolveGatewayConfig_DistrictRoutingBeatsOverride(t *testing.T) {
	override := &models.GatewaySetting{
		Name:    utils.GatewaySettingName,
		DdoCode: utils.ToPtr("OVR-00-001"),
	}

	cfg := ResolveGatewayConfig(productionDefaults(), override, "Chamba")
	assert.Equal(t, "CHM-00-019", cfg.DdoCode)
}

func TestResolveGatewayConfig_PlaceholderSubstitution(t *testing.T) {
	cfg := ResolveGatewayConfig(GatewayDefaults{}, nil, "")

	assert.False(t, cfg.IsComplete)
	assert.Equal(t, services.ConfigStatusPlaceholder, cfg.ConfigStatus)
	assert.Equal(t, PlaceholderMerchantCode, cfg.MerchantCode)
	assert.Equal(t, PlaceholderDeptID, cfg.DeptID)
	assert.Equal(t, PlaceholderServiceCode, cfg.ServiceCode)
	assert.Equal(t, PlaceholderDdoCode, cfg.DdoCode)

	head1, ok := cfg.Head(1)
	require.True(t, ok)
	assert.Equal(t, PlaceholderHead1, head1.Code)
	assert.True(t, decimal.NewFromInt(100).Equal(head1.Percent))
}

func TestResolveGatewayConfig_PartialDefaultsStillPlaceholder(t *testing.T) {
	defaults := GatewayDefaults{
		MerchantCode: "HPTSM01",
		DeptID:       "233",
	}

	cfg := ResolveGatewayConfig(defaults, nil, "")

	assert.False(t, cfg.IsComplete)
	assert.Equal(t, services.ConfigStatusPlaceholder, cfg.ConfigStatus)
	// Configured fields survive; only the gaps get placeholders.
	assert.Equal(t, "HPTSM01", cfg.MerchantCode)
	assert.Equal(t, PlaceholderServiceCode, cfg.ServiceCode)
}

func TestResolveGatewayConfig_FreshSnapshotPerCall(t *testing.T) {
	defaults := productionDefaults()
	first := ResolveGatewayConfig(defaults, nil, "Shimla")

	override := &models.GatewaySetting{
		Name:         utils.GatewaySettingName,
		MerchantCode: utils.ToPtr("ROTATED"),
	}
	second := ResolveGatewayConfig(defaults, override, "Shimla")

	// Rotated credentials apply to new resolutions without touching earlier
	// snapshots.
	assert.Equal(t, "HPTSM01", first.MerchantCode)
	assert.Equal(t, "ROTATED", second.MerchantCode)
}
