package reading

import (
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/shopspring/decimal"
)

// 纠错方式（写入 CorrectionMethod）
const (
	MethodDigitDrop   = "digit-drop"   // 多抄了一位，去掉
	MethodDigitInsert = "digit-insert" // 漏抄了一位，补上
	MethodDigitSwap   = "digit-swap"   // 相邻两位抄反
	MethodDecimalSlip = "decimal-slip" // 小数点错位
	MethodEstimate    = "estimate"     // 按平均日用量估算
	MethodManual      = "manual"       // 人工改值
)

// Reading 表读数 GORM 模型（小时表/里程表通用）。
// 纠错只发生一次原值保留：OriginalValue 首次纠错时写入，之后不再变。
type Reading struct {
	ID        string    `gorm:"primaryKey;size:36"`
	VehicleID string    `gorm:"index;size:36;not null"`
	Meter     string    `gorm:"index;size:16;not null"` // horimeter / odometer
	ReadAt    time.Time `gorm:"index;not null"`

	Value            decimal.Decimal     `gorm:"type:decimal(12,1);not null"`
	OriginalValue    decimal.NullDecimal `gorm:"type:decimal(12,1)"` // 纠错前的原始值
	CorrectionMethod string              `gorm:"size:16"`

	OperatorID string `gorm:"index;size:36"`
	Origin     string `gorm:"size:16;not null"` // desk / field / import
	Notes      string `gorm:"size:255"`

	// 同步元数据
	Sync syncstate.Meta `gorm:"embedded"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
