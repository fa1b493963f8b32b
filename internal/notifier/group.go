package notifier

import "context"

// Group fans one alert out to several notifiers, in order.
type Group []*Notifier

func (g Group) Send(ctx context.Context) []SendReport {
	out := make([]SendReport, 0, len(g))
	for _, n := range g {
		if n == nil {
			continue
		}
		out = append(out, n.Send(ctx))
	}
	return out
}

func (g Group) Alert(ctx context.Context) { g.Send(ctx) }
