// admin 命令初始化管理员账号，可选写入默认套餐。
//
//	go run ./cmd/admin -email ops@example.com
//	go run ./cmd/admin -email ops@example.com -seed-plans
package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"careerHub/internal/auth"
	"careerHub/internal/config"
	"careerHub/internal/database"
)

// 默认套餐，价格单位为 INR。
var defaultPlans = []database.Plan{
	{Name: "Basic", Price: 499, Duration: "Yearly", Features: "5 applications per day,Course videos,Interview questions", IsCurrent: true},
	{Name: "Premium", Price: 1999, Duration: "Yearly", Features: "Unlimited applications,Course videos,Interview questions,Placement sessions"},
}

func main() {
	email := flag.String("email", "", "管理员邮箱（必填）")
	name := flag.String("name", "Admin", "管理员显示名")
	dbHost := flag.String("db-host", "", "覆盖 DATABASE_HOST")
	dbPort := flag.Int("db-port", 0, "覆盖 DATABASE_PORT")
	seedPlans := flag.Bool("seed-plans", false, "同时写入默认套餐（已存在同名套餐时跳过）")
	flag.Parse()

	addr, err := mail.ParseAddress(strings.TrimSpace(*email))
	if err != nil {
		log.Fatalf("invalid -email: %v", err)
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	if *dbHost != "" {
		dbCfg.Host = *dbHost
	}
	if *dbPort > 0 {
		dbCfg.Port = *dbPort
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	password, err := oneTimePassword()
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}
	if err := createAdmin(db, strings.ToLower(addr.Address), strings.TrimSpace(*name), password); err != nil {
		log.Fatalf("create admin: %v", err)
	}

	fmt.Println("已创建管理员账号，首次登录须修改密码：")
	fmt.Printf("  邮箱     %s\n", strings.ToLower(addr.Address))
	fmt.Printf("  初始密码 %s（仅显示一次）\n", password)

	if *seedPlans {
		created, err := ensurePlans(db, defaultPlans)
		if err != nil {
			log.Fatalf("seed plans: %v", err)
		}
		fmt.Printf("已写入 %d 个套餐\n", created)
	}
}

func createAdmin(db *gorm.DB, email, displayName, password string) error {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("user %q already exists", email)
		}

		user := database.User{
			Email:              email,
			FirstName:          displayName,
			PasswordHash:       hashed,
			Role:               database.RoleAdmin,
			MustChangePassword: true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return tx.Create(&database.Profile{UserID: user.ID, FullName: displayName, Email: email}).Error
	})
}

// ensurePlans 按名称写入缺失的套餐，返回新建数量。
func ensurePlans(db *gorm.DB, plans []database.Plan) (int, error) {
	created := 0
	for _, plan := range plans {
		var existing database.Plan
		err := db.Where("LOWER(name) = ?", strings.ToLower(plan.Name)).First(&existing).Error
		switch {
		case err == nil:
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return created, fmt.Errorf("lookup plan %q: %w", plan.Name, err)
		}
		if err := db.Create(&plan).Error; err != nil {
			return created, fmt.Errorf("insert plan %q: %w", plan.Name, err)
		}
		created++
	}
	return created, nil
}

func oneTimePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// 末尾追加数字以满足 ValidatePassword 的字母加数字要求。
	return base64.RawURLEncoding.EncodeToString(buf) + "7", nil
}
