package database

import (
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDatabase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Database Suite")
}

var _ = Describe("Database Configuration", func() {
	Describe("DefaultConfig", func() {
		It("should return correct default values", func() {
			config := DefaultConfig()

			Expect(config.Host).To(Equal("localhost"))
			Expect(config.Port).To(Equal(5432))
			Expect(config.User).To(Equal("orderflow_user"))
			Expect(config.Database).To(Equal("orderflow"))
			Expect(config.SSLMode).To(Equal("disable"))
			Expect(config.MaxOpenConns).To(Equal(25))
			Expect(config.MaxIdleConns).To(Equal(5))
			Expect(config.ConnMaxLifetime).To(Equal(5 * time.Minute))
			Expect(config.ConnMaxIdleTime).To(Equal(5 * time.Minute))
		})
	})

	Describe("LoadFromEnv", func() {
		var config *Config
		var originalEnvVars map[string]string

		BeforeEach(func() {
			config = DefaultConfig()

			originalEnvVars = map[string]string{
				"DB_HOST":     os.Getenv("DB_HOST"),
				"DB_PORT":     os.Getenv("DB_PORT"),
				"DB_USER":     os.Getenv("DB_USER"),
				"DB_PASSWORD": os.Getenv("DB_PASSWORD"),
				"DB_NAME":     os.Getenv("DB_NAME"),
				"DB_SSL_MODE": os.Getenv("DB_SSL_MODE"),
			}
		})

		AfterEach(func() {
			for key, value := range originalEnvVars {
				if value == "" {
					os.Unsetenv(key)
				} else {
					os.Setenv(key, value)
				}
			}
		})

		Context("when all environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("DB_HOST", "testhost")
				os.Setenv("DB_PORT", "3306")
				os.Setenv("DB_USER", "testuser")
				os.Setenv("DB_PASSWORD", "testpass")
				os.Setenv("DB_NAME", "testdb")
				os.Setenv("DB_SSL_MODE", "require")
			})

			It("should load values from environment", func() {
				config.LoadFromEnv()

				Expect(config.Host).To(Equal("testhost"))
				Expect(config.Port).To(Equal(3306))
				Expect(config.User).To(Equal("testuser"))
				Expect(config.Password).To(Equal("testpass"))
				Expect(config.Database).To(Equal("testdb"))
				Expect(config.SSLMode).To(Equal("require"))
			})
		})

		Context("when DB_PORT has invalid value", func() {
			BeforeEach(func() {
				os.Setenv("DB_PORT", "invalid_port")
			})

			It("should keep default port value", func() {
				originalPort := config.Port
				config.LoadFromEnv()

				Expect(config.Port).To(Equal(originalPort))
			})
		})

		Context("when environment variables are not set", func() {
			BeforeEach(func() {
				for key := range originalEnvVars {
					os.Unsetenv(key)
				}
			})

			It("should keep default values", func() {
				originalConfig := *config
				config.LoadFromEnv()

				Expect(*config).To(Equal(originalConfig))
			})
		})
	})

	Describe("Validate", func() {
		var config *Config

		BeforeEach(func() {
			config = DefaultConfig()
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				Expect(config.Validate()).To(Succeed())
			})
		})

		Context("when host is empty", func() {
			It("should return an error", func() {
				config.Host = ""
				err := config.Validate()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("host is required"))
			})
		})

		Context("when port is out of range", func() {
			It("should reject zero", func() {
				config.Port = 0
				Expect(config.Validate()).To(HaveOccurred())
			})

			It("should reject values above 65535", func() {
				config.Port = 70000
				Expect(config.Validate()).To(HaveOccurred())
			})
		})

		Context("when user is empty", func() {
			It("should return an error", func() {
				config.User = ""
				err := config.Validate()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("user is required"))
			})
		})

		Context("when database name is empty", func() {
			It("should return an error", func() {
				config.Database = ""
				err := config.Validate()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("name is required"))
			})
		})

		Context("when pool sizes are inconsistent", func() {
			It("should reject non-positive max open connections", func() {
				config.MaxOpenConns = 0
				Expect(config.Validate()).To(HaveOccurred())
			})

			It("should reject idle connections exceeding open connections", func() {
				config.MaxIdleConns = config.MaxOpenConns + 1
				Expect(config.Validate()).To(HaveOccurred())
			})
		})
	})

	Describe("ConnectionString", func() {
		It("should render a pgx-compatible DSN", func() {
			config := &Config{
				Host:     "db.internal",
				Port:     5433,
				User:     "svc",
				Password: "secret",
				Database: "orders",
				SSLMode:  "require",
			}

			dsn := config.ConnectionString()

			Expect(dsn).To(Equal("host=db.internal port=5433 user=svc password=secret dbname=orders sslmode=require"))
		})
	})
})
