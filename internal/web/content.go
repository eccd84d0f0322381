package web

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var contentYAML []byte

// siteContent is the editorial text of the static pages.
type siteContent struct {
	Tagline    string        `yaml:"tagline"`
	Hours      []string      `yaml:"hours"`
	About      string        `yaml:"about"`
	Highlights []highlight   `yaml:"highlights"`
	Menu       []menuSection `yaml:"menu"`
	Privacy    privacyPolicy `yaml:"privacy"`
}

type highlight struct {
	Title   string `yaml:"title"`
	Caption string `yaml:"caption"`
}

type menuSection struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Items []menuItem `yaml:"items"`
}

type menuItem struct {
	Title       string   `yaml:"title"`
	Price       string   `yaml:"price"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type privacyPolicy struct {
	Updated  string           `yaml:"updated"`
	Intro    string           `yaml:"intro"`
	Sections []privacySection `yaml:"sections"`
}

type privacySection struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Intro   string   `yaml:"intro"`
	Bullets []string `yaml:"bullets"`
}

func loadContent(data []byte) (*siteContent, error) {
	var c siteContent
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse site content: %w", err)
	}
	if len(c.Menu) == 0 {
		return nil, fmt.Errorf("parse site content: empty menu")
	}
	return &c, nil
}
