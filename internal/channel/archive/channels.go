package archive

import (
	"context"
	"sync"

	"coinquest/logger"
	"coinquest/models"
)

type ChannelStats struct {
	RecordsSent    int64
	RecordsDropped int64
}

// Channels carries flat archive rows to the S3 writer.
type Channels struct {
	Records chan models.ArchiveRecord

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Records: make(chan models.ArchiveRecord, bufferSize),
		log:     log,
	}

	log.WithComponent("archive_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("archive channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Records)
	c.log.WithComponent("archive_channels").Info("archive channels closed")
}

func (c *Channels) SendRecord(ctx context.Context, rec models.ArchiveRecord) bool {
	select {
	case c.Records <- rec:
		c.statsMutex.Lock()
		c.stats.RecordsSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RecordsDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
