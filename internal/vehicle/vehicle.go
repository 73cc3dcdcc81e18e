package vehicle

import (
	"time"

	"github.com/shopspring/decimal"
)

// 车辆状态
const (
	StatusActive      = "active"      // 在用
	StatusMaintenance = "maintenance" // 维修中
	StatusRetired     = "retired"     // 报废/退役
)

// 车辆类别
const (
	KindTruck   = "truck"   // 卡车/货车
	KindMachine = "machine" // 工程机械（挖机、压路机等）
	KindLight   = "light"   // 轻型车
)

// 计量方式：工程机械按小时表，公路车按里程表，两者都有的记 both
const (
	MeterHorimeter = "horimeter"
	MeterOdometer  = "odometer"
	MeterBoth      = "both"
)

// Vehicle 是 vehicles 表的 GORM 模型。
//
// Code 是车队内部编号（如 CB-07），业务侧的主要标识；
// 工程机械没有牌照，PlateNumber 允许为空。
type Vehicle struct {
	ID               string          `gorm:"primaryKey;size:36"`
	Code             string          `gorm:"uniqueIndex;size:16;not null"`
	PlateNumber      string          `gorm:"index;size:32"`
	Description      string          `gorm:"size:128"`
	Kind             string          `gorm:"size:16;not null"` // truck / machine / light
	FuelType         string          `gorm:"size:16;not null"` // diesel / gasoline / ethanol / arla
	MeterKind        string          `gorm:"size:16;not null"` // horimeter / odometer / both
	CurrentHorimeter decimal.Decimal `gorm:"type:decimal(12,1);not null;default:0"`
	CurrentOdometer  decimal.Decimal `gorm:"type:decimal(12,1);not null;default:0"`
	Status           string          `gorm:"size:16;not null"` // active / maintenance / retired
	CreatedAt        time.Time       `gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime"`
}

// UsesHorimeter 该车是否记录小时表
func (v *Vehicle) UsesHorimeter() bool {
	return v != nil && (v.MeterKind == MeterHorimeter || v.MeterKind == MeterBoth)
}

// UsesOdometer 该车是否记录里程表
func (v *Vehicle) UsesOdometer() bool {
	return v != nil && (v.MeterKind == MeterOdometer || v.MeterKind == MeterBoth)
}
