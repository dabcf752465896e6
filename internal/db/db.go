package db

import (
	"errors"
	"fmt"
	"strings"

	"gocoax-monitor/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the database at path, migrates it and stores it in DB.
func InitDB(path string) (*gorm.DB, error) {
	gdb, err := Open(path)
	if err != nil {
		return nil, err
	}
	DB = gdb
	return gdb, nil
}

// Open opens and migrates a database without touching DB.
func Open(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := gdb.AutoMigrate(&models.Device{}, &models.LinkState{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Rows stored without an auth mode default to basic.
	if err := gdb.Model(&models.Device{}).
		Where("auth_mode IS NULL OR auth_mode = ''").
		Updates(map[string]interface{}{"auth_mode": "basic"}).Error; err != nil {
		log.Warn().Err(err).Msg("failed to backfill device.auth_mode")
	}
	return gdb, nil
}

// UniqueID is the key config entries are deduplicated on.
func UniqueID(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func ListDevices(gdb *gorm.DB) ([]models.Device, error) {
	var devices []models.Device
	err := gdb.Order("id asc").Find(&devices).Error
	return devices, err
}

func GetDevice(gdb *gorm.DB, id uint) (models.Device, error) {
	var d models.Device
	err := gdb.First(&d, id).Error
	return d, err
}

// DeviceByUniqueID returns (nil, nil) when no entry has that unique id.
func DeviceByUniqueID(gdb *gorm.DB, uniqueID string) (*models.Device, error) {
	var d models.Device
	err := gdb.Where("unique_id = ?", uniqueID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func CreateDevice(gdb *gorm.DB, d *models.Device) error {
	return gdb.Create(d).Error
}

// DeleteDevice removes the entry and its link history.
func DeleteDevice(gdb *gorm.DB, id uint) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.LinkState{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Device{}, id).Error
	})
}

// RecordLinkStatus stores the latest link status of a device. changed is true
// when a previously known status differs from status; prev is "" on first sight.
func RecordLinkStatus(gdb *gorm.DB, deviceID uint, status string) (prev string, changed bool, err error) {
	var existing models.LinkState
	tx := gdb.Where("device_id = ?", deviceID).First(&existing)
	if tx.Error == nil {
		if existing.Status == status {
			return existing.Status, false, nil
		}
		prev = existing.Status
		existing.Status = status
		existing.StatusChanges++
		return prev, true, gdb.Save(&existing).Error
	}
	if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return "", false, tx.Error
	}
	return "", false, gdb.Create(&models.LinkState{DeviceID: deviceID, Status: status}).Error
}

// LinkStateOf returns (nil, nil) for a device that was never polled successfully.
func LinkStateOf(gdb *gorm.DB, deviceID uint) (*models.LinkState, error) {
	var s models.LinkState
	err := gdb.Where("device_id = ?", deviceID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
