package rpc

import (
	"context"
	"strings"
	"sync"

	"connectrpc.com/connect"
)

// ExchangeProcedure is the connect procedure carrying peer frames.
const ExchangeProcedure = "/docmesh.cluster.v1.PeerService/Exchange"

// streamWire adapts a connect client bidi stream to Wire.
type streamWire struct {
	stream *connect.BidiStreamForClient[Frame, Frame]
	cancel context.CancelFunc
	once   sync.Once
}

// DialWire opens an exchange stream to the peer at baseURL. The HTTP client
// must speak HTTP/2, either over TLS or cleartext (h2c).
func DialWire(ctx context.Context, httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) (Wire, error) {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	client := connect.NewClient[Frame, Frame](httpClient, strings.TrimRight(baseURL, "/")+ExchangeProcedure, opts...)

	ctx, cancel := context.WithCancel(ctx)
	stream := client.CallBidiStream(ctx)
	// Send the request headers so the stream opens before the first frame.
	if err := stream.Send(nil); err != nil {
		cancel()
		stream.CloseResponse()
		return nil, err
	}
	return &streamWire{stream: stream, cancel: cancel}, nil
}

func (w *streamWire) Send(f Frame) error {
	return w.stream.Send(&f)
}

func (w *streamWire) Recv() (Frame, error) {
	f, err := w.stream.Receive()
	if err != nil {
		w.stream.CloseResponse()
		return Frame{}, err
	}
	return *f, nil
}

func (w *streamWire) Close() error {
	w.once.Do(func() {
		w.stream.CloseRequest()
		w.cancel()
	})
	return nil
}
