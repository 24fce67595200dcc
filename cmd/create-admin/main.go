package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mailprov/backend/internal/auth"
	"mailprov/backend/internal/storage"
	sqlstore "mailprov/backend/internal/storage/sql"
)

// openFunc 打开主数据库，返回用户仓储和关闭函数
type openFunc func(dbType, dsn string) (storage.UserRepository, func() error, error)

func main() {
	if err := newRootCommand(openDatabase, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(open openFunc, out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("mailprov")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var (
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:          "create-admin",
		Short:        "Create an operator account in the main database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbType := v.GetString("database.type")
			dsn := v.GetString("database.dsn")
			if dbType == "" || dsn == "" {
				return errors.New("database type and dsn are required (flags or MAILPROV_DATABASE_TYPE / MAILPROV_DATABASE_DSN)")
			}

			users, closeFn, err := open(dbType, dsn)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			user, err := auth.NewService(users, nil, nil).CreateUser(ctx, email, password, admin)
			if err != nil {
				return fmt.Errorf("create operator: %w", err)
			}

			fmt.Fprintln(out, "✓ Operator created successfully!")
			fmt.Fprintf(out, "  ID:    %s\n", user.ID)
			fmt.Fprintf(out, "  Email: %s\n", user.Email)
			fmt.Fprintf(out, "  Admin: %t\n", user.IsAdmin)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&email, "email", "", "operator email")
	flags.StringVar(&password, "password", "", "initial password (8-72 characters)")
	flags.BoolVar(&admin, "admin", true, "grant administrator rights")
	flags.String("db-type", "", "database type: mysql or postgres")
	flags.String("dsn", "", "database connection string")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	_ = v.BindPFlag("database.type", flags.Lookup("db-type"))
	_ = v.BindPFlag("database.dsn", flags.Lookup("dsn"))

	return cmd
}

// openDatabase 连接主数据库并确保表结构存在
func openDatabase(dbType, dsn string) (storage.UserRepository, func() error, error) {
	store, err := sqlstore.NewStore(strings.ToLower(dbType), dsn, sqlstore.Options{})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(sqlstore.SchemaMain); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate main schema: %w", err)
	}
	return store, store.Close, nil
}
