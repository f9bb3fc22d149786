// Package despacho delivers outbound Telegram notifications with
// credential rotation and graceful media degradation.
//
// A Dispatcher owns an ordered pool of bot credentials and a single
// destination chat. Each Dispatch opens a short-lived session on one
// credential, picks a delivery tier from the payload's media (plain
// text, image set, or fetched video) and reacts to API backpressure by
// rotating to the next credential instead of waiting:
//
//	pool, err := despacho.NewPool(tokenA, tokenB, tokenC)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d, err := despacho.New(pool, chatID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = d.Dispatch(ctx, despacho.Payload{
//	    Title:  "*New post*",
//	    Body:   "Something happened.",
//	    Link:   "https://example.com/post",
//	    Images: []string{"https://example.com/cover.jpg"},
//	})
//
// Only when the last credential is rate limited does Dispatch block for
// the server-advised interval before failing, so a retry after the error
// faces a cooled-down pool. Content rejections degrade within the
// attempt (a refused video falls back to text), never across
// credentials.
//
// # Subpackages
//
// sender holds the low-level Bot API client with rate limiting, retries
// and a circuit breaker. tg holds shared wire types and the error
// taxonomy. compose renders scraped items into payloads, config loads
// runtime settings, and queue consumes payloads from AMQP.
package despacho
