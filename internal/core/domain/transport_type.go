package domain

// TransportType identifies the protocol used to reach a source.
type TransportType string

// Supported transport types.
const (
	TransportHTTP  TransportType = "http"
	TransportHTTPS TransportType = "https"
	TransportFTP   TransportType = "ftp"
	TransportSFTP  TransportType = "sftp"
	TransportLocal TransportType = "local"
	TransportS3    TransportType = "s3"
)

// TransportSpec describes a supported transport and its configuration.
type TransportSpec struct {
	// Type is the value stored in Source.Type.
	Type TransportType
	// Name is the human-readable display name.
	Name string
	// Description provides a brief explanation of the transport.
	Description string
	// EndpointLabel names what Source.Endpoint holds for this transport.
	EndpointLabel string
	// ConfigKeys lists the auth and option fields understood by this transport.
	ConfigKeys []ConfigKey
}

// ConfigKey describes a configuration field for a transport.
type ConfigKey struct {
	// Key is the auth or option key name.
	Key string
	// Label is the human-readable label.
	Label string
	// Description explains what this field is for.
	Description string
	// Default is the value used when the field is unset.
	Default string
	// Required indicates whether this field must be provided.
	Required bool
	// Secret indicates whether this field should be masked on output.
	Secret bool
}

var httpKeys = []ConfigKey{
	{Key: "api_url", Label: "Index URL", Description: `JSON index returning {"files":[{"name","url","size"}]}`},
	{Key: "parse_html", Label: "Scrape links", Description: "Scrape anchor links when no index is set", Default: "true"},
	{Key: "timeout", Label: "Timeout", Description: "Connect and response timeout in seconds", Default: "30"},
	{Key: "username", Label: "Username", Description: "Basic auth user"},
	{Key: "password", Label: "Password", Description: "Basic auth password", Secret: true},
	{Key: "rate_limit", Label: "Rate limit", Description: "Bandwidth cap per second, e.g. 2MB"},
}

var transportSpecs = []TransportSpec{
	{
		Type:          TransportHTTP,
		Name:          "HTTP",
		Description:   "Files linked from a web page or listed by a JSON index",
		EndpointLabel: "url",
		ConfigKeys:    httpKeys,
	},
	{
		Type:          TransportHTTPS,
		Name:          "HTTPS",
		Description:   "Files linked from a web page or listed by a JSON index",
		EndpointLabel: "url",
		ConfigKeys:    httpKeys,
	},
	{
		Type:          TransportFTP,
		Name:          "FTP",
		Description:   "Recursive mirror of an FTP directory",
		EndpointLabel: "host",
		ConfigKeys: []ConfigKey{
			{Key: "port", Label: "Port", Default: "21"},
			{Key: "remote_path", Label: "Remote path", Default: "/"},
			{Key: "username", Label: "Username", Default: "anonymous"},
			{Key: "password", Label: "Password", Default: "anonymous@", Secret: true},
			{Key: "timeout", Label: "Timeout", Description: "Seconds", Default: "30"},
			{Key: "rate_limit", Label: "Rate limit", Description: "Bandwidth cap per second, e.g. 2MB"},
		},
	},
	{
		Type:          TransportSFTP,
		Name:          "SFTP",
		Description:   "Recursive mirror of a directory over SSH",
		EndpointLabel: "host",
		ConfigKeys: []ConfigKey{
			{Key: "port", Label: "Port", Default: "22"},
			{Key: "remote_path", Label: "Remote path", Default: "/"},
			{Key: "username", Label: "Username", Required: true},
			{Key: "password", Label: "Password", Secret: true},
			{Key: "private_key", Label: "Private key file", Description: "Path to a PEM private key"},
			{Key: "known_hosts", Label: "Known hosts file", Description: "Host key verification is skipped when unset"},
			{Key: "timeout", Label: "Timeout", Description: "Seconds", Default: "30"},
			{Key: "rate_limit", Label: "Rate limit", Description: "Bandwidth cap per second, e.g. 2MB"},
		},
	},
	{
		Type:          TransportLocal,
		Name:          "Local directory",
		Description:   "Copy of a directory on this machine",
		EndpointLabel: "path",
	},
	{
		Type:          TransportS3,
		Name:          "S3 bucket",
		Description:   "Objects of an S3 or S3-compatible bucket",
		EndpointLabel: "bucket",
		ConfigKeys: []ConfigKey{
			{Key: "prefix", Label: "Key prefix"},
			{Key: "region", Label: "Region", Default: "us-east-1"},
			{Key: "endpoint_url", Label: "Endpoint URL", Description: "For S3-compatible services"},
			{Key: "path_style", Label: "Path-style addressing", Default: "false"},
			{Key: "access_key", Label: "Access key"},
			{Key: "secret_key", Label: "Secret key", Secret: true},
			{Key: "session_token", Label: "Session token", Secret: true},
			{Key: "timeout", Label: "Timeout", Description: "Seconds without data before a transfer is abandoned", Default: "30"},
			{Key: "rate_limit", Label: "Rate limit", Description: "Bandwidth cap per second, e.g. 2MB"},
		},
	},
}

// TransportSpecs returns the catalog of supported transports.
func TransportSpecs() []TransportSpec {
	out := make([]TransportSpec, len(transportSpecs))
	copy(out, transportSpecs)
	return out
}

// LookupTransport returns the spec for a transport type.
func LookupTransport(t TransportType) (TransportSpec, bool) {
	for _, spec := range transportSpecs {
		if spec.Type == t {
			return spec, true
		}
	}
	return TransportSpec{}, false
}
