package objectstore

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) Store { return c }),
)
