package types

type ApiType string

const (
	ApiTypeOllama ApiType = "ollama"
	ApiTypeOpenAI ApiType = "openai"
	// ApiTypeEcho replies with the last human turn; it needs no backend.
	ApiTypeEcho ApiType = "echo"
)

func (a ApiType) IsValid() bool {
	switch a {
	case ApiTypeOllama, ApiTypeOpenAI, ApiTypeEcho:
		return true
	}
	return false
}
