package stream

// Schema defaults for streams constructed without an explicit descriptor.
const (
	DefaultNamespaceName = "StromSchema"
	DefaultEntryName     = "TopLevelEntry"
)

// SchemaDescriptor describes the entry type of a stream for remote
// consumers. Schema reflection itself is an external collaborator: callers
// hand the stream a fully materialized descriptor, including per-language
// renderings keyed by language name.
type SchemaDescriptor struct {
	TypeID        string            `json:"type_id"`
	TypeName      string            `json:"type_name"`
	EntryName     string            `json:"entry_name"`
	NamespaceName string            `json:"namespace_name"`
	Language      map[string]string `json:"language,omitempty"`
}

// DefaultSchema is the descriptor of a stream with no declared schema.
func DefaultSchema() SchemaDescriptor {
	return SchemaDescriptor{
		TypeID:        "T0000000000000000000",
		TypeName:      DefaultEntryName,
		EntryName:     DefaultEntryName,
		NamespaceName: DefaultNamespaceName,
	}
}

// subscribableSchema is the compact form served for schema_format=simple.
type subscribableSchema struct {
	TypeID        string `json:"type_id"`
	EntryName     string `json:"entry_name"`
	NamespaceName string `json:"namespace_name"`
}

// schemaFormatNotFound is the 404 body for an unknown schema_format key.
type schemaFormatNotFound struct {
	Error                      string `json:"error"`
	UnsupportedFormatRequested string `json:"unsupported_format_requested"`
}
