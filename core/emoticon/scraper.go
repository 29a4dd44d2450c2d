/*

Warden - Lumichat Moderation Backend
Copyright (C) 2025 Lumichat Authors, https://github.com/lumichat

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

Warden is provided “as is” without warranty of any kind, either expressed or implied.
Use at your own risk. The maintainers shall not be liable for any damages or data loss
resulting from the use or misuse of this software.
*/

// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package emoticon scrapes emoticon galleries over HTTP. Extraction is
// deliberately naive: image tags with their alt captions, nothing more.
package emoticon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/docker/go-units"
	stripper "github.com/grokify/html-strip-tags-go"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	fetchTimeout = 15 * time.Second
	maxBodySize  = 2 * units.MiB
)

var (
	imgTagRegex = regexp.MustCompile(`(?is)<img[^>]*>`)
	srcRegex    = regexp.MustCompile(`(?i)src=["']([^"']+)["']`)
	altRegex    = regexp.MustCompile(`(?i)alt=["']([^"']*)["']`)
)

type Scraper struct {
	origin string
	client *http.Client
	cache  *lru.LRU[string, []domain.Emoticon]
	group  singleflight.Group
}

// NewScraper serves emoticon sets from the configured gallery origin,
// keeping one cached set per origin for the given lifetime.
func NewScraper(origin string, cacheSize int, cacheTTL time.Duration) *Scraper {
	return &Scraper{
		origin: strings.TrimRight(strings.TrimSpace(origin), "/"),
		client: &http.Client{Timeout: fetchTimeout},
		cache:  lru.NewLRU[string, []domain.Emoticon](cacheSize, nil, cacheTTL),
	}
}

// Emoticons returns the gallery set, scraping on a cold cache. An empty
// override falls back to the configured origin. Concurrent cold reads of
// one origin share a single scrape.
func (s *Scraper) Emoticons(ctx context.Context, originOverride string) (string, []domain.Emoticon, error) {
	origin := s.origin
	if strings.TrimSpace(originOverride) != "" {
		origin = strings.TrimRight(strings.TrimSpace(originOverride), "/")
	}
	if origin == "" {
		return "", nil, domain.ErrEmptyInput
	}

	if set, ok := s.cache.Get(origin); ok {
		metrics.EmoticonReads.WithLabelValues(metrics.OutcomeHit).Inc()
		return origin, set, nil
	}

	v, err, _ := s.group.Do(origin, func() (any, error) {
		// the flight we waited behind may have scraped already
		if set, ok := s.cache.Get(origin); ok {
			metrics.EmoticonReads.WithLabelValues(metrics.OutcomeHit).Inc()
			return set, nil
		}
		set, err := s.scrape(ctx, origin)
		if err != nil {
			metrics.EmoticonReads.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, err
		}
		s.cache.Add(origin, set)
		metrics.EmoticonReads.WithLabelValues(metrics.OutcomeMiss).Inc()
		return set, nil
	})
	if err != nil {
		return origin, nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}
	return origin, v.([]domain.Emoticon), nil
}

func (s *Scraper) scrape(ctx context.Context, origin string) ([]domain.Emoticon, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("emoticon: origin %q: %v", origin, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return nil, fmt.Errorf("emoticon: gallery request: %v", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emoticon: gallery %s: %w", origin, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("emoticon: gallery %s: status %d", origin, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("emoticon: gallery %s: read: %w", origin, err)
	}

	emoticons := extract(origin, base, body)
	log.Infof("emoticon: scraped %d emoticons from %s", len(emoticons), origin)
	return emoticons, nil
}

func extract(origin string, base *url.URL, body []byte) []domain.Emoticon {
	now := time.Now()
	seen := map[string]struct{}{}

	emoticons := make([]domain.Emoticon, 0)
	for _, tag := range imgTagRegex.FindAllString(string(body), -1) {
		m := srcRegex.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		imgURL := base.ResolveReference(ref).String()
		if imgURL == "" {
			continue
		}
		if _, ok := seen[imgURL]; ok {
			continue
		}
		seen[imgURL] = struct{}{}

		caption := ""
		if am := altRegex.FindStringSubmatch(tag); am != nil {
			caption = strings.TrimSpace(stripper.StripTags(am[1]))
		}
		if caption == "" {
			caption = tagFromPath(imgURL)
		}

		emoticons = append(emoticons, domain.Emoticon{
			Origin:    origin,
			Url:       imgURL,
			Tag:       caption,
			FetchedAt: now,
		})
	}
	return emoticons
}

func tagFromPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	return strings.TrimSuffix(name, path.Ext(name))
}
