package version

var (
	Version    = "0.1"
	GitHash    = "devXXX"
	BuildTS    = "2026-01-01T00:00:00Z" // to be replaced at build time
	APIVersion = "1.0"
	Name       = "chainctl"
	Agent      = Name + "/" + Version
	Branch     = "main"
)

type VersionConfig struct {
	Version    string `json:"Version"`
	GitHash    string `json:"GitHash"`
	BuildTS    string `json:"BuildTS"`
	APIVersion string `json:"APIVersion"`
	Agent      string `json:"Agent"`
	Branch     string `json:"Branch"`
}

func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version:    Version,
		GitHash:    GitHash,
		BuildTS:    BuildTS,
		APIVersion: APIVersion,
		Agent:      Agent,
		Branch:     Branch,
	}
}
