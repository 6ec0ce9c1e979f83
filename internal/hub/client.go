package hub

import "sync"

// Client is the delivery sink of one live connection. The transport drains
// Send until Done is closed.
type Client struct {
	ID     string
	UserID int64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

// NewClient builds a sink with a send buffer of the given size. onClose runs
// once, on the first Close.
func NewClient(id string, userID int64, buffer int, onClose func()) *Client {
	return &Client{
		ID:      id,
		UserID:  userID,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

// offer never blocks; it reports false when the buffer is full or the client
// is closed.
func (c *Client) offer(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}
