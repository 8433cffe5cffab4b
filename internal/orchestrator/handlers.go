package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/mocapd/internal/domain"
	"github.com/shaiso/mocapd/internal/mq"
	"github.com/shaiso/mocapd/internal/queue"
	"github.com/shaiso/mocapd/internal/store"
)

// HandleSubmission обрабатывает заявку task.submit из очереди приёма.
//
// Невалидная заявка уходит в DLQ. Переполнение очереди — штатный отказ:
// сообщение подтверждается, отправитель узнаёт о нём из события task.rejected.
// Остановка оркестратора возвращает сообщение в очередь.
func (o *Orchestrator) HandleSubmission(ctx context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeSubmit {
		return mq.Permanent(fmt.Errorf("unexpected message type %q", delivery.Message.Type))
	}

	payload, err := mq.ParsePayload[mq.SubmitPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse task.submit payload", "error", err)
		return mq.Permanent(err)
	}

	req := SubmitRequest{
		VideoPath: payload.VideoPath,
		Options:   payload.Options,
	}
	if payload.TaskID != nil {
		req.TaskID = *payload.TaskID
	}

	o.logger.Debug("received task.submit", "message_id", delivery.Message.ID, "video_path", payload.VideoPath)

	task, err := o.Submit(ctx, req)
	switch {
	case err == nil:
		o.logger.Info("submission accepted", "task_id", task.ID, "message_id", delivery.Message.ID)
		return nil

	case errors.Is(err, queue.ErrQueueFull):
		return nil

	case errors.Is(err, ErrInvalidRequest), errors.Is(err, domain.ErrInvalidOptions):
		o.notify(ctx, mq.MessageTypeTaskRejected, mq.TaskEventPayload{
			TaskID:    req.TaskID,
			VideoPath: req.VideoPath,
			ErrorKind: domain.ErrorKindValidation,
			Error:     err.Error(),
		})
		return mq.Permanent(err)

	case errors.Is(err, store.ErrAlreadyExists):
		// повторная доставка уже принятой заявки
		o.logger.Debug("duplicate submission ignored", "task_id", req.TaskID)
		return nil

	default:
		return err
	}
}
