// internal/models/settings.go
package models

// Store setting keys.
const (
	SettingStoreName             = "store_name"
	SettingCurrency              = "currency"
	SettingTaxRate               = "tax_rate"
	SettingFlatShippingRate      = "flat_shipping_rate"
	SettingFreeShippingThreshold = "free_shipping_threshold"
	SettingLowStockThreshold     = "low_stock_threshold"
	SettingBackupRetention       = "backup_retention"
)

// Setting data types.
const (
	SettingTypeString  = "string"
	SettingTypeDecimal = "decimal"
	SettingTypeInteger = "integer"
	SettingTypeBoolean = "boolean"
)

type SettingDefinition struct {
	Key         string
	DataType    string
	Description string
}

var SettingDefinitions = []SettingDefinition{
	{SettingStoreName, SettingTypeString, "Store name shown in emails and the storefront"},
	{SettingCurrency, SettingTypeString, "ISO 4217 currency code for prices"},
	{SettingTaxRate, SettingTypeDecimal, "Sales tax rate in percent"},
	{SettingFlatShippingRate, SettingTypeDecimal, "Flat shipping charge per order"},
	{SettingFreeShippingThreshold, SettingTypeDecimal, "Subtotal at which shipping becomes free"},
	{SettingLowStockThreshold, SettingTypeInteger, "Stock level at which products are reported as low"},
	{SettingBackupRetention, SettingTypeInteger, "Number of completed backups kept by scheduled pruning"},
}

func LookupSettingDefinition(key string) (SettingDefinition, bool) {
	for _, d := range SettingDefinitions {
		if d.Key == key {
			return d, true
		}
	}
	return SettingDefinition{}, false
}
