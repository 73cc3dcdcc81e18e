package fuel

import (
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/shopspring/decimal"
)

// 记录来源
const (
	OriginDesk   = "desk"   // 后台录入
	OriginField  = "field"  // 现场人员录入
	OriginImport = "import" // 历史表格导入
)

// Record 加油记录 GORM 模型。
// 表格镜像里的一行对应这里的一条记录，Sync 里保存对账状态。
type Record struct {
	ID string `gorm:"primaryKey;size:36"`

	// 业务关联
	VehicleID  string `gorm:"index;size:36;not null"`
	SupplierID string `gorm:"index;size:36"`    // 供应商（可空）
	OperatorID string `gorm:"index;size:36"`    // 录入人
	Origin     string `gorm:"size:16;not null"` // desk / field / import

	// 加油信息
	FilledAt time.Time       `gorm:"index;not null"`
	Liters   decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	// 金额信息（单位：分）
	UnitPriceCents int64  `gorm:"not null;default:0"`
	TotalCents     int64  `gorm:"not null;default:0"`
	Currency       string `gorm:"size:8;not null;default:'BRL'"`

	// 加油时的表读数（按车辆计量方式填，可空）
	Horimeter decimal.NullDecimal `gorm:"type:decimal(12,1)"`
	Odometer  decimal.NullDecimal `gorm:"type:decimal(12,1)"`

	// 同时加注的润滑油（可选）
	LubricantID  string          `gorm:"size:36"`
	LubricantQty decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`

	Notes string `gorm:"size:255"`

	// 同步元数据
	Sync syncstate.Meta `gorm:"embedded"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
