package models

// Calendar — отслеживаемый внешний календарь.
type Calendar struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}
