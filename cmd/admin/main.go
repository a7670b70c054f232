package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"cohortflow/internal/auth"
	"cohortflow/internal/config"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/store"
)

func main() {
	var (
		email   = flag.String("email", "", "员工邮箱（必填）")
		name    = flag.String("name", "", "显示名称（必填）")
		role    = flag.String("role", string(domain.RoleReviewer), "角色：reviewer 或 coordinator")
		driver  = flag.String("db-driver", "", "数据库驱动 postgres / sqlite（可选，默认读 DATABASE_DRIVER）")
		sqlite  = flag.String("db-sqlite-path", "", "SQLite 文件路径（可选，默认读 DATABASE_SQLITE_PATH）")
		dbHost  = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	staffRole, err := parseStaffRole(*role)
	if err != nil {
		log.Fatal(err)
	}
	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" || !strings.Contains(e, "@") {
		log.Fatal("missing or invalid flag: --email")
	}
	n := strings.TrimSpace(*name)
	if n == "" {
		log.Fatal("missing required flag: --name")
	}

	dbCfg, err := loadDatabaseConfig(*driver, *sqlite, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	users := store.NewGorm(db).Users()

	password, err := auth.GenerateTemporaryPassword(16)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Email:              e,
		Name:               n,
		Role:               staffRole,
		PasswordHash:       hashed,
		MustChangePassword: true,
	}
	switch err := users.Create(context.Background(), &user); {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		log.Fatalf("user %q already exists", e)
	default:
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建员工账号（首次登录需强制改密）：\n")
	fmt.Printf("邮箱: %s\n", e)
	fmt.Printf("角色: %s\n", staffRole)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

// parseStaffRole 只允许创建员工角色；申请人通过 /v1/auth/register 自助注册。
func parseStaffRole(raw string) (domain.Role, error) {
	switch r := domain.Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case domain.RoleReviewer, domain.RoleCoordinator:
		return r, nil
	default:
		return "", fmt.Errorf("--role must be reviewer or coordinator, got %q", raw)
	}
}

func loadDatabaseConfig(driver, sqlitePath, host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(driver) == "" {
		driver = os.Getenv("DATABASE_DRIVER")
	}
	if strings.TrimSpace(driver) == "" {
		driver = "postgres"
	}
	if driver == "sqlite" {
		if strings.TrimSpace(sqlitePath) == "" {
			sqlitePath = os.Getenv("DATABASE_SQLITE_PATH")
		}
		if strings.TrimSpace(sqlitePath) == "" {
			sqlitePath = "cohortflow.db"
		}
		return config.DatabaseConfig{Driver: driver, SQLitePath: sqlitePath}, nil
	}

	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Driver:   driver,
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
