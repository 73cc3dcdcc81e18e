package catalog

import "time"

// 油品类别
const (
	LubricantEngineOil = "engine-oil" // 机油
	LubricantHydraulic = "hydraulic"  // 液压油
	LubricantGearOil   = "gear-oil"   // 齿轮油
	LubricantGrease    = "grease"     // 润滑脂
	LubricantCoolant   = "coolant"    // 冷却液
)

// Supplier 加油供应商（加油站/油料公司）。
// 被加油记录引用过的供应商只停用不删除。
type Supplier struct {
	ID     string `gorm:"primaryKey;size:36"`
	Name   string `gorm:"uniqueIndex;size:64;not null"`
	TaxID  string `gorm:"size:20"` // CNPJ，只存数字
	Phone  string `gorm:"size:20"`
	City   string `gorm:"size:64"`
	Active bool   `gorm:"default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Lubricant 油品目录（机油、液压油等，加油时一并登记用量）。
type Lubricant struct {
	ID     string `gorm:"primaryKey;size:36"`
	Name   string `gorm:"uniqueIndex;size:64;not null"`
	Kind   string `gorm:"size:16"`          // engine-oil / hydraulic / ...
	Unit   string `gorm:"size:8;default:L"` // 计量单位
	Active bool   `gorm:"default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
