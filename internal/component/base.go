package component

// Base is embedded by every concrete variant to satisfy Component without
// repeating the Configuration() boilerplate.
type Base struct {
	Name        string
	Variant     Variant
	ContentType string
	Endpoint    string
	Description string
	Tags        []string
}

// Configuration returns the declared configuration (§3.1).
func (b Base) Configuration() Configuration {
	return Configuration{
		Name:        b.Name,
		Variant:     b.Variant,
		ContentType: b.ContentType,
		Endpoint:    b.Endpoint,
		Description: b.Description,
		Tags:        b.Tags,
	}
}
