// internal/services/settings_service.go
package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type SettingsService struct {
	db    *gorm.DB
	cfg   *config.Config
	audit *AuditService
}

// StoreSettings is the typed view of the settings table used by pricing,
// catalog and backups. Missing rows fall back to config defaults.
type StoreSettings struct {
	StoreName             string          `json:"store_name"`
	Currency              string          `json:"currency"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	FlatShippingRate      decimal.Decimal `json:"flat_shipping_rate"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
	LowStockThreshold     int             `json:"low_stock_threshold"`
	BackupRetention       int             `json:"backup_retention"`
}

func NewSettingsService(db *gorm.DB, cfg *config.Config, audit *AuditService) *SettingsService {
	return &SettingsService{db: db, cfg: cfg, audit: audit}
}

func (s *SettingsService) defaults() StoreSettings {
	return StoreSettings{
		StoreName:             s.cfg.Store.Name,
		Currency:              s.cfg.Store.Currency,
		TaxRate:               decimal.NewFromFloat(s.cfg.Store.TaxRate),
		FlatShippingRate:      decimal.NewFromFloat(s.cfg.Store.FlatShippingRate),
		FreeShippingThreshold: decimal.NewFromFloat(s.cfg.Store.FreeShippingThreshold),
		LowStockThreshold:     s.cfg.Store.LowStockThreshold,
		BackupRetention:       s.cfg.Backup.Retention,
	}
}

func (s *SettingsService) List() ([]models.Setting, error) {
	var settings []models.Setting
	if err := s.db.Order("created_at asc").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}
	return settings, nil
}

// StoreSettings reads the settings table using db, which may be a transaction.
func (s *SettingsService) StoreSettings(db *gorm.DB) (*StoreSettings, error) {
	if db == nil {
		db = s.db
	}

	var rows []models.Setting
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load store settings: %w", err)
	}

	out := s.defaults()
	for _, row := range rows {
		raw, ok := row.Value["value"]
		if !ok || raw == nil {
			continue
		}
		switch row.Key {
		case models.SettingStoreName:
			if v, err := parseSettingString(raw); err == nil {
				out.StoreName = v
			}
		case models.SettingCurrency:
			if v, err := parseSettingString(raw); err == nil {
				out.Currency = strings.ToUpper(v)
			}
		case models.SettingTaxRate:
			if v, err := parseSettingDecimal(raw); err == nil {
				out.TaxRate = v
			}
		case models.SettingFlatShippingRate:
			if v, err := parseSettingDecimal(raw); err == nil {
				out.FlatShippingRate = v
			}
		case models.SettingFreeShippingThreshold:
			if v, err := parseSettingDecimal(raw); err == nil {
				out.FreeShippingThreshold = v
			}
		case models.SettingLowStockThreshold:
			if v, err := parseSettingInteger(raw); err == nil {
				out.LowStockThreshold = v
			}
		case models.SettingBackupRetention:
			if v, err := parseSettingInteger(raw); err == nil {
				out.BackupRetention = v
			}
		}
	}
	return &out, nil
}

// Update applies a bulk key → value map. Every value is checked against the
// key's declared type before anything is written.
func (s *SettingsService) Update(actor Actor, values map[string]interface{}) ([]models.Setting, error) {
	if len(values) == 0 {
		return nil, utils.NewValidationError("no settings provided", nil)
	}

	normalized := make(map[string]interface{}, len(values))
	var problems []utils.ValidationError
	for key, raw := range values {
		def, ok := models.LookupSettingDefinition(key)
		if !ok {
			problems = append(problems, utils.ValidationError{Field: key, Tag: "unknown", Message: "unknown setting " + key})
			continue
		}
		v, err := normalizeSetting(def, raw)
		if err != nil {
			problems = append(problems, utils.ValidationError{Field: key, Tag: def.DataType, Message: err.Error()})
			continue
		}
		normalized[key] = v
	}
	if len(problems) > 0 {
		return nil, utils.NewValidationError("invalid settings", problems)
	}

	oldValues := map[string]interface{}{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, v := range normalized {
			def, _ := models.LookupSettingDefinition(key)
			var setting models.Setting
			err := tx.Where(&models.Setting{Key: key}).First(&setting).Error
			switch {
			case err == nil:
				oldValues[key] = setting.Value["value"]
				setting.Value = models.JSONB{"value": v}
				setting.UpdatedBy = actor.UserID
				if err := tx.Save(&setting).Error; err != nil {
					return fmt.Errorf("failed to update setting %s: %w", key, err)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				setting = models.Setting{
					Key:         key,
					Value:       models.JSONB{"value": v},
					DataType:    def.DataType,
					Description: def.Description,
					UpdatedBy:   actor.UserID,
				}
				if err := tx.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			default:
				return fmt.Errorf("failed to load setting %s: %w", key, err)
			}
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "settings.updated",
			ResourceType: "settings",
			OldValues:    oldValues,
			NewValues:    normalized,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.List()
}

func normalizeSetting(def models.SettingDefinition, raw interface{}) (interface{}, error) {
	switch def.DataType {
	case models.SettingTypeDecimal:
		d, err := parseSettingDecimal(raw)
		if err != nil {
			return nil, err
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%s must not be negative", def.Key)
		}
		if def.Key == models.SettingTaxRate && d.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%s must be at most 100", def.Key)
		}
		return d.StringFixed(2), nil
	case models.SettingTypeInteger:
		n, err := parseSettingInteger(raw)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must not be negative", def.Key)
		}
		return n, nil
	case models.SettingTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%s must be a boolean", def.Key)
		}
		return b, nil
	default:
		str, err := parseSettingString(raw)
		if err != nil {
			return nil, err
		}
		if str == "" {
			return nil, fmt.Errorf("%s must not be empty", def.Key)
		}
		if def.Key == models.SettingCurrency {
			if len(str) != 3 {
				return nil, fmt.Errorf("%s must be a 3-letter ISO code", def.Key)
			}
			str = strings.ToUpper(str)
		}
		return str, nil
	}
}

func parseSettingString(raw interface{}) (string, error) {
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value must be a string")
	}
	return strings.TrimSpace(str), nil
}

func parseSettingDecimal(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("value must be a decimal number")
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return decimal.Zero, fmt.Errorf("value must be a decimal number")
	}
}

func parseSettingInteger(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value must be a whole number")
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("value must be a whole number")
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value must be a whole number")
	}
}
