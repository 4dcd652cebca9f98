// Package sup implements the control plane of a supervisord-style process
// supervisor: the wire protocol spoken between the supctl client and the supd
// daemon, and the Unix socket transport that carries it.
//
// A control exchange is one connection carrying one request and one response:
//
//	client, err := sup.NewClient("/run/sup.sock")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Status(context.Background())
//	fmt.Println(resp) // "program is running, pid is 4242"
//
// # Wire format
//
// A request is exactly one byte, the Command code (start=0 through exit=6).
// Any other input, including a request of the wrong length, decodes to
// CommandUnknown, so decoding a request never fails.
//
// A response is a 4-byte big-endian PID followed by the UTF-8 message. A PID
// of zero means the response carries no process identifier. There is no length
// prefix: each side half-closes its write direction when done, and the peer
// reads to end of stream.
//
// # Serving
//
// The daemon side pairs a UnixTransport with a Handler:
//
//	tp := sup.NewUnixTransport("/run/sup.sock", sup.WithQueueSize(64))
//	srv := sup.NewServer(tp, sup.RejectUnknown(handler))
//	err := srv.Run(ctx)
//
// The transport's accept loop runs in its own goroutine and hands accepted
// connections to the server through a bounded queue. When the queue is full
// the loop either stops accepting until it drains (BackpressureBlock) or
// closes the new connection (BackpressureReject). The server services queued
// connections one at a time in arrival order.
package sup
