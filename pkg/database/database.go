package database

import (
	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the connection and runs migrations. In release mode the
// schema is left alone unless forceMigrate is set.
func InitDB(cfg *config.DatabaseConfig, mode string, forceMigrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	// TranslateError turns driver duplicate-key violations into
	// gorm.ErrDuplicatedKey, which the assessment repository maps to the
	// duplicate-answer error kind.
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if mode != "release" || forceMigrate {
		err = db.AutoMigrate(
			&model.User{},
			&model.Question{},
			&model.Assessment{},
			&model.AssessmentResponse{},
			&model.IntegrityEvent{},
		)
		if err != nil {
			return nil, err
		}
		log.Println("Database migration completed")
	}

	return db, nil
}
