package stream

import "go.uber.org/zap"

// Log logs values as they pass through at debug level
func Log[T any](logger *zap.Logger) Processor[T] {
	return func(stream Stream[T]) Stream[T] {
		return &loggedStream[T]{stream, logger, 0}
	}
}

type loggedStream[T any] struct {
	Stream[T]
	logger *zap.Logger
	count  int
}

func (stream *loggedStream[T]) Next() bool {
	if !stream.Stream.Next() {
		if err := stream.Error(); err != nil {
			stream.logger.Debug("stream failed", zap.Int("count", stream.count), zap.Error(err))
		} else {
			stream.logger.Debug("stream done", zap.Int("count", stream.count))
		}

		return false
	}

	stream.count++
	stream.logger.Debug("next value", zap.Int("count", stream.count), zap.Any("value", stream.Value()))

	return true
}
