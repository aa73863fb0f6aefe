package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region constants
// ScoreMethod is the full gRPC method name served by the inference service.
const ScoreMethod = "/clipeval.v1.ScorerService/Score"

// #endregion constants

// #region types
// Result holds the model output for one batch of clips.
type Result struct {
	Logits [][]float32
	// Loss is the batch loss when the service computed one, nil otherwise.
	Loss *float64
}

// invoker is the subset of *grpc.ClientConn the client needs.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// #endregion types

// #region client-struct
// Client scores clip batches on the remote inference service.
type Client struct {
	conn   *grpc.ClientConn
	inv    invoker
	policy RetryPolicy
}

// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server.
func NewClient(addr string, policy RetryPolicy, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, inv: conn, policy: policy}, nil
}

// NewClientWithInvoker creates a Client on top of an injected invoker.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker, policy RetryPolicy) *Client {
	return &Client{inv: inv, policy: policy}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region score
// Score sends the clip tensors of one batch and returns one logit row per
// clip. Transient transport failures are retried per the retry policy.
func (c *Client) Score(ctx context.Context, clips []dataset.Clip) (Result, error) {
	req, err := buildRequest(clips)
	if err != nil {
		return Result{}, err
	}

	var resp *structpb.Struct
	for attempt := 0; ; attempt++ {
		resp = &structpb.Struct{}
		callCtx, cancel := c.policy.callContext(ctx)
		err = c.inv.Invoke(callCtx, ScoreMethod, req, resp)
		cancel()
		if err == nil {
			break
		}
		if !c.policy.retryable(err, attempt) {
			return Result{}, fmt.Errorf("score rpc: %w", err)
		}
		select {
		case <-time.After(c.policy.backoff(attempt)):
		case <-ctx.Done():
			return Result{}, fmt.Errorf("score rpc: %w", ctx.Err())
		}
	}

	res, err := parseResponse(resp)
	if err != nil {
		return Result{}, err
	}
	if len(res.Logits) != len(clips) {
		return Result{}, fmt.Errorf("score rpc: %d logit rows for %d clips", len(res.Logits), len(clips))
	}
	return res, nil
}

// #endregion score

// #region wire
// buildRequest encodes clips as {"clips": [{"sample_id", "label", "shape", "data"}]}
// with data carried as little-endian float32 bytes.
func buildRequest(clips []dataset.Clip) (*structpb.Struct, error) {
	items := make([]any, len(clips))
	for i, c := range clips {
		shape := make([]any, len(c.Shape))
		for j, d := range c.Shape {
			shape[j] = d
		}
		items[i] = map[string]any{
			"sample_id": c.SampleID,
			"label":     c.Label,
			"shape":     shape,
			"data":      dataset.EncodeTensor(c.Data),
		}
	}
	req, err := structpb.NewStruct(map[string]any{"clips": items})
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	return req, nil
}

// parseResponse reads {"logits": [[...], ...], "loss": number|null}.
func parseResponse(resp *structpb.Struct) (Result, error) {
	fields := resp.GetFields()
	rows := fields["logits"].GetListValue()
	if rows == nil {
		return Result{}, fmt.Errorf("score response: missing logits")
	}

	res := Result{Logits: make([][]float32, len(rows.GetValues()))}
	for i, row := range rows.GetValues() {
		vals := row.GetListValue().GetValues()
		out := make([]float32, len(vals))
		for j, v := range vals {
			if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
				return Result{}, fmt.Errorf("score response: logits[%d][%d] is not a number", i, j)
			}
			out[j] = float32(v.GetNumberValue())
		}
		res.Logits[i] = out
	}

	if lv, ok := fields["loss"]; ok {
		if _, isNum := lv.GetKind().(*structpb.Value_NumberValue); isNum {
			loss := lv.GetNumberValue()
			res.Loss = &loss
		}
	}
	return res, nil
}

// #endregion wire
