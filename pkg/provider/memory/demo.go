package memory

import (
	"fmt"
	"time"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// NewDemo returns a store seeded with a few buckets of sample data and a
// small per-call latency so loading states are visible.
func NewDemo(scheme cloudpath.Scheme) *Provider {
	p := New(scheme, "demo-project")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	p.PutObjectAt("analytics-raw", "events/2024/03/01/part-0000.json", make([]byte, 48_213), base)
	p.PutObjectAt("analytics-raw", "events/2024/03/01/part-0001.json", make([]byte, 51_907), base.Add(time.Hour))
	p.PutObjectAt("analytics-raw", "events/2024/03/02/part-0000.json", make([]byte, 47_110), base.Add(24*time.Hour))
	p.PutObjectAt("analytics-raw", "README.md", []byte("# analytics-raw\n"), base)
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("photos/2023/IMG_%04d.jpg", 1000+i)
		p.PutObjectAt("media-assets", key, make([]byte, 1_800_000+i*7_331), base.Add(time.Duration(i)*time.Minute))
	}
	p.PutObjectAt("media-assets", "thumbnails/", nil, base)
	p.PutObjectAt("media-assets", "thumbnails/IMG_1000.png", make([]byte, 12_288), base)
	p.CreateBucket("empty-bucket")

	p.SetLatency(150 * time.Millisecond)
	return p
}
