/*
Package transformer implements the provider adaptation layer of the router.

A Transformer is a named unit of adaptation for one provider quirk: an auth
scheme, a body rewrite, a response fix-up. It takes part in up to three
stages, decided by the optional interfaces it implements:

	RequestInTransformer   - reshape the body, contribute headers
	AuthTransformer        - write credential headers
	ResponseOutTransformer - normalize the upstream response

# Pipeline

A Chain lists the transformers configured for a provider. Pipeline runs it
around one upstream call:

 1. Request-in stages run in order. Each receives the current body and
    returns a new body, which replaces it completely, plus a HeaderPatch.
 2. Auth stages run the same way, after every request-in stage.
 3. The body, headers and URL are frozen into an Outbound and dispatched.
 4. Response-out stages run in reverse order (or forward, per chain), each
    receiving the previous output.

Any stage error stops the call before dispatch. The pipeline never retries.

# Headers

Header keys are case-insensitive. A HeaderPatch entry either writes a value
(Set) or removes the key (Unset). The last stage to touch a key wins, and an
Unset removes a key written earlier under any casing:

	HeaderPatch{}.
		Set("api-key", provider.APIKey).
		Unset("Authorization").
		Unset("authorization")

# Writing a transformer

Implement Name and the stages you need, then register a Factory:

	registry.Register("mytransformer", func(opts map[string]any) (Transformer, error) {
		return &MyTransformer{}, nil
	})

Stages must not modify their inputs. Return StageInputError for a body the
stage cannot handle, AuthResolutionError for missing credentials, and prefer
passing a response through over ResponseNormalizationError.
*/
package transformer
