package models

import (
	"time"

	"gorm.io/gorm"
)

// GatewaySetting is the single persisted override record for the treasury
// gateway credentials. Fields are pointers: nil means the field was never set
// and the compiled default applies; an empty string means the administrator
// explicitly blanked it, which for the secondary budget head clears the
// default rather than falling through to it.
type GatewaySetting struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`

	MerchantCode *string `gorm:"type:varchar(32)" json:"merchant_code,omitempty"`
	DeptID       *string `gorm:"type:varchar(32)" json:"dept_id,omitempty"`
	ServiceCode  *string `gorm:"type:varchar(32)" json:"service_code,omitempty"`
	DdoCode      *string `gorm:"type:varchar(32)" json:"ddo_code,omitempty"`

	Head1         *string `gorm:"type:varchar(32)" json:"head1,omitempty"`
	Head1Percent  *string `gorm:"type:varchar(8)" json:"head1_percent,omitempty"`
	Head2         *string `gorm:"type:varchar(32)" json:"head2,omitempty"`
	Head2Percent  *string `gorm:"type:varchar(8)" json:"head2_percent,omitempty"`
	Head3         *string `gorm:"type:varchar(32)" json:"head3,omitempty"`
	Head3Percent  *string `gorm:"type:varchar(8)" json:"head3_percent,omitempty"`
	Head4         *string `gorm:"type:varchar(32)" json:"head4,omitempty"`
	Head4Percent  *string `gorm:"type:varchar(8)" json:"head4_percent,omitempty"`
	Head10        *string `gorm:"type:varchar(32)" json:"head10,omitempty"`
	Head10Percent *string `gorm:"type:varchar(8)" json:"head10_percent,omitempty"`

	ReturnURL *string `gorm:"type:text" json:"return_url,omitempty"`
	KeyPath   *string `gorm:"type:text" json:"key_path,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (GatewaySetting) TableName() string { return "gateway_settings" }

// GatewaySettingFilter represents filter criteria for gateway setting queries
type GatewaySettingFilter struct {
	ID   *uint   `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}
