package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Answers carries operator values loaded from a YAML file for
// non-interactive deploys. Missing fields are prompted for.
type Answers struct {
	Domain     string `yaml:"domain"`
	AdminEmail string `yaml:"admin_email"`
	DBPassword string `yaml:"db_password"`
	Supervisor string `yaml:"supervisor"`
}

// LoadAnswers parses an answers file.
func LoadAnswers(path string) (*Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	var a Answers
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse answers file %s: %w", path, err)
	}
	return &a, nil
}

// Collect merges answers with interactive prompts: any field the answers
// file supplies is taken as-is, the rest are asked for.
func (a *Answers) Collect(c *Collector) (domain, email, dbPassword, supervisor string, err error) {
	if a == nil {
		a = &Answers{}
	}
	domain = a.Domain
	if domain == "" {
		if domain, err = c.AskRequired("Domain name (e.g. example.com)"); err != nil {
			return
		}
	}
	email = a.AdminEmail
	if email == "" {
		if email, err = c.Ask("Admin email", "admin@"+domain); err != nil {
			return
		}
	}
	dbPassword = a.DBPassword
	if dbPassword == "" {
		if dbPassword, err = c.AskSecret("Database password"); err != nil {
			return
		}
	}
	supervisor = a.Supervisor
	if supervisor == "" {
		if supervisor, err = c.Ask("Process supervisor (pm2/systemd)", SupervisorSystemd); err != nil {
			return
		}
	}
	return
}
