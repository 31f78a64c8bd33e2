// Package writer archives whale alerts and price snapshots to S3 as
// parquet files.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "coinquest/config"
	archivech "coinquest/internal/channel/archive"
	"coinquest/logger"
	"coinquest/models"
)

// ParquetRecord is the row layout of an archived event.
type ParquetRecord struct {
	Kind      string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Change24h float64 `parquet:"name=change_24h, type=DOUBLE"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	ValueUSD  float64 `parquet:"name=value_usd, type=DOUBLE"`
	Narrative string  `parquet:"name=narrative, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFileWriter implements ParquetFile for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ArchiveWriter drains the archive channel into buffered batches and
// uploads each batch as a parquet file under a date-partitioned S3 key.
type ArchiveWriter struct {
	config      *appconfig.Config
	records     <-chan models.ArchiveRecord
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.Mutex
	running     bool
	buffer      []models.ArchiveRecord
	flushTicker *time.Ticker
	log         *logger.Log
}

// NewArchiveWriter builds the writer and validates AWS credentials up front.
func NewArchiveWriter(cfg *appconfig.Config, ch *archivech.Channels) (*ArchiveWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archive_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	w := &ArchiveWriter{
		config:   cfg,
		records:  ch.Records,
		s3Client: s3.NewFromConfig(awsConfig),
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
		"prefix": cfg.Storage.S3.Prefix,
	}).Info("archive writer initialized")

	return w, nil
}

func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.buffer = make([]models.ArchiveRecord, 0, w.config.Storage.S3.BatchSize)
	w.mu.Unlock()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting archive writer")

	w.flushTicker = time.NewTicker(w.config.Storage.S3.FlushInterval)

	w.wg.Add(1)
	go w.worker()

	log.Info("archive writer started successfully")
	return nil
}

func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) worker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting archive worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flush("shutdown")
			log.Info("archive worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flush("interval")
		case rec, ok := <-w.records:
			if !ok {
				w.flush("channel closed")
				return
			}
			w.add(rec)
		}
	}
}

func (w *ArchiveWriter) add(rec models.ArchiveRecord) {
	w.mu.Lock()
	w.buffer = append(w.buffer, rec)
	full := len(w.buffer) >= w.config.Storage.S3.BatchSize
	w.mu.Unlock()

	if full {
		w.flush("batch size")
	}
}

func (w *ArchiveWriter) flush(reason string) {
	w.mu.Lock()
	batch := w.buffer
	w.buffer = make([]models.ArchiveRecord, 0, w.config.Storage.S3.BatchSize)
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"record_count": len(batch),
		"reason":       reason,
		"operation":    "flush",
	})
	log.Info("flushing archive batch")

	key := w.generateS3Key(time.Now())
	log = log.WithFields(logger.Fields{"s3_key": key})

	data, err := encodeParquet(batch)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.upload(key, data); err != nil {
		log.WithError(err).WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).Error("failed to upload to S3")
		return
	}

	logger.IncrementArchiveWrite(int64(len(data)))
	log.WithFields(logger.Fields{"file_size": len(data)}).Info("archive batch uploaded successfully")
}

func (w *ArchiveWriter) generateS3Key(now time.Time) string {
	ts := now.UTC()
	parts := []string{}
	if w.config.Storage.S3.Prefix != "" {
		parts = append(parts, w.config.Storage.S3.Prefix)
	}
	parts = append(parts,
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("events_%s_%s.parquet", ts.Format("20060102150405"), uuid.New().String()[:8]),
	)
	return filepath.ToSlash(filepath.Join(parts...))
}

func encodeParquet(records []models.ArchiveRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := ParquetRecord{
			Kind:      rec.Kind,
			Symbol:    rec.Symbol,
			Price:     rec.Price,
			Change24h: rec.Change24h,
			Quantity:  rec.Quantity,
			ValueUSD:  rec.ValueUSD,
			Narrative: rec.Narrative,
			Timestamp: rec.Timestamp,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"coinquest-version": w.config.Coinquest.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
