package embed

import (
	"encoding/json"
	"errors"

	"github.com/foliumapp/ragcore/pkg/clients/base"
	"github.com/foliumapp/ragcore/pkg/clients/embedding"
	"github.com/foliumapp/ragcore/pkg/errs"
)

// Provider is the external embedding provider, classified per §4.3:
// single-request errors are mapped to the shared error taxonomy before
// any retry is attempted.
type Provider interface {
	// FetchOne requests a single embedding vector for text.
	FetchOne(model, text string) ([]float32, error)
}

// ClientProvider adapts pkg/clients/embedding.Client (an OpenAI-shaped
// embeddings endpoint) to Provider, classifying transport failures into
// the shared error taxonomy by HTTP status and decode outcome.
type ClientProvider struct {
	client *embedding.Client
	model  string
}

func NewClientProvider(client *embedding.Client, model string) *ClientProvider {
	return &ClientProvider{client: client, model: model}
}

func (p *ClientProvider) FetchOne(model, text string) ([]float32, error) {
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateEmbeddingWithDefaults(model, text)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(resp.Data) == 0 {
		return nil, errs.New("embed.FetchOne", errs.EmbeddingFailed, errors.New("provider response carried no vector"))
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

// classifyTransportError maps a base.ClientError (HTTP status or
// transport failure) into the shared taxonomy. A JSON decode failure
// surfaces from resty as a json.*SyntaxError/UnmarshalTypeError wrapped
// inside the client error chain.
func classifyTransportError(err error) error {
	var clientErr *base.ClientError
	if errors.As(err, &clientErr) {
		if clientErr.StatusCode > 0 {
			return errs.FromHTTPStatus("embed.FetchOne", clientErr.StatusCode, err)
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return errs.New("embed.FetchOne", errs.ParseFailed, err)
		}
		return errs.New("embed.FetchOne", errs.ProviderUnavailable, err)
	}
	return errs.New("embed.FetchOne", errs.ProviderUnavailable, err)
}
