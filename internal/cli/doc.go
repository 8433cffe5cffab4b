// Package cli реализует инструмент командной строки mocapctl.
//
// # Обзор
//
// CLI — клиентская утилита для mocapd API. Работает через HTTP
// и не импортирует серверные пакеты. Исключение: task enqueue
// публикует заявку напрямую в очередь приёма RabbitMQ через internal/mq.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для mocapd API. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8000")
//	task, err := client.SubmitTask(cli.SubmitTaskRequest{VideoPath: "/data/run.mp4"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: mocapctl task list --json | jq .
//
// ## Commands
//
// Cobra-команды:
//   - task: list, submit, enqueue, show, wait, delete, download
//   - queue, stats, history, cleanup
//
// Каждая команда создаётся фабричной функцией (NewTaskCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
