// ABOUTME: mDNS discovery of Guessong servers on the local network
// ABOUTME: Lets the client find a server when no URL was configured
package discovery

import (
	"context"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const serviceType = "_guessong-server._tcp"

// ServerInfo describes a discovered game server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Browser searches the local network for Guessong servers.
type Browser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// NewBrowser creates a browser. Call Browse to start searching.
func NewBrowser() *Browser {
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Browse starts querying in the background. Discovered servers arrive on
// the Servers channel.
func (b *Browser) Browse() {
	go b.browseLoop()
}

func (b *Browser) browseLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				log.Info().Str("name", server.Name).Str("host", server.Host).Int("port", server.Port).Msg("discovered server")

				select {
				case b.servers <- server:
				case <-b.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			log.Debug().Err(err).Msg("mdns query failed")
		}
		close(entries)
	}
}

// Servers returns the channel of discovered servers.
func (b *Browser) Servers() <-chan *ServerInfo {
	return b.servers
}

// Stop stops browsing.
func (b *Browser) Stop() {
	b.cancel()
}
