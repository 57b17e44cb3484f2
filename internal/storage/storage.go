// storage определяет контракт хранилища дедупликации events-parser.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable — хранилище недоступно (сеть, таймаут, закрытый клиент).
// Такой результат нельзя трактовать как «событие новое».
var ErrUnavailable = errors.New("dedup store unavailable")

// Dedup — состояние «уже обработано» по паре (источник, ссылка)
// и полезная нагрузка опубликованных событий.
type Dedup interface {
	// IsNew сообщает, что url ещё не встречался у source. Побочных эффектов нет.
	// Ошибка связи возвращается как ErrUnavailable, результат при этом не определён.
	IsNew(ctx context.Context, source, url string) (bool, error)
	// MarkSeen идемпотентно добавляет url в seen-множество source.
	MarkSeen(ctx context.Context, source, url string) error
	// SavePayload сохраняет сериализованное событие под ключом от хэша url
	// с TTL хранилища; повторный вызов перезаписывает значение и обновляет TTL.
	SavePayload(ctx context.Context, url string, payload []byte) error
	// Close закрывает соединение.
	Close() error
}
