package db

import (
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/2024aa05820/mlops-assignment2/config"
)

var once sync.Once
var db *gorm.DB

// GetSharedConnection returns the process-wide database connection,
// opening it on first use from the global config. Connection failures
// are fatal; callers gate on config.Config.Database.Enabled.
func GetSharedConnection() *gorm.DB {
	once.Do(func() {
		db = GetConnection(&config.Config.Database)
	})
	return db
}

// GetConnection opens a fresh connection from the given config.
func GetConnection(databaseConfig *config.DatabaseConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
		databaseConfig.Host,
		databaseConfig.Username,
		databaseConfig.Password,
		databaseConfig.Name,
		databaseConfig.Port,
		databaseConfig.TimeZone,
	)
	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		QueryFields: true, // QueryFields mode will select by all fields' name for current model
	})
	if err != nil {
		panic("Could not open database connection")
	}

	sqlDB, _ := conn.DB()

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(databaseConfig.Pool.IdleConnections)
	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(databaseConfig.Pool.MaxConnections)
	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(databaseConfig.Pool.ConnLifeTime)

	return conn
}

// Close closes the underlying sql.DB of a gorm connection.
func Close(conn *gorm.DB) {
	if conn != nil {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	}
}
