package agentcaller

import (
	"context"
	"fmt"
)

// FakeCaller is a Caller test double: it records every invocation and returns
// pre-programmed outputs keyed by agent URL.
type FakeCaller struct {
	Outputs map[string][]string
	Calls   []Request
	urls    []string
}

// NewFakeCaller returns a caller that always answers with the given per-URL outputs.
func NewFakeCaller(outputs map[string][]string) *FakeCaller {
	return &FakeCaller{Outputs: outputs}
}

var _ Caller = (*FakeCaller)(nil)

func (c *FakeCaller) Call(ctx context.Context, url string, inputs []string) (*Response, error) {
	c.Calls = append(c.Calls, Request{DerivedAgentInput: inputs})
	c.urls = append(c.urls, url)

	outputs, ok := c.Outputs[url]
	if !ok {
		return nil, fmt.Errorf("agentcaller: fake has no programmed response for %s", url)
	}
	return &Response{DerivedAgentOutput: outputs}, nil
}

// URLs returns the agent URLs invoked, in call order.
func (c *FakeCaller) URLs() []string {
	return c.urls
}
