package upstream

// Gateway joins the REST client and the live channel into the single
// upstream the chat engine expects.
type Gateway struct {
	*Client
	*Live
}

// NewGateway pairs c and l.
func NewGateway(c *Client, l *Live) *Gateway {
	return &Gateway{Client: c, Live: l}
}
