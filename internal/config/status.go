package config

// Status is a printable view of the configuration with secrets masked.
type Status struct {
	InvenTree StatusEntry   `json:"inventree"`
	Digikey   StatusEntry   `json:"digikey"`
	Mouser    StatusEntry   `json:"mouser"`
	PartKey   string        `json:"part_key"`
	ImageDir  string        `json:"image_cache_dir"`
	History   bool          `json:"history"`
	Suppliers []string      `json:"suppliers"`
	Details   []StatusField `json:"details"`
}

// StatusEntry tells whether one integration is configured.
type StatusEntry struct {
	Configured bool `json:"configured"`
}

// StatusField is one masked setting, in display order.
type StatusField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// maskedToken replaces the InvenTree token entirely.
const maskedToken = "**********"

// Mask keeps the first 8 characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return secret[:len(secret)/2] + "..."
	}
	return secret[:8] + "..."
}

// Status reports which integrations are configured without revealing credentials.
func (c *Config) Status() Status {
	s := Status{
		InvenTree: StatusEntry{Configured: c.InvenTree.Configured()},
		Digikey:   StatusEntry{Configured: c.Digikey.Configured()},
		Mouser:    StatusEntry{Configured: c.Mouser.Configured()},
		PartKey:   c.PartKey,
		ImageDir:  c.ImageDir,
		History:   c.Postgres.Enabled(),
		Suppliers: c.Suppliers(),
	}
	if s.Suppliers == nil {
		s.Suppliers = []string{}
	}

	if c.InvenTree.Configured() {
		s.Details = append(s.Details,
			StatusField{Name: "InvenTree URL", Value: c.InvenTree.ServerURL},
			StatusField{Name: "InvenTree Token", Value: maskedToken},
		)
	}
	if c.Digikey.Configured() {
		s.Details = append(s.Details,
			StatusField{Name: "Digikey Client ID", Value: Mask(c.Digikey.ClientID)},
			StatusField{Name: "Digikey Sandbox", Value: boolText(c.Digikey.Sandbox)},
		)
	}
	if c.Mouser.Configured() {
		s.Details = append(s.Details, StatusField{Name: "Mouser API Key", Value: Mask(c.Mouser.PartAPIKey)})
	}
	return s
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
