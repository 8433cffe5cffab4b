// Package cleanup удаляет артефакты tasks на диске.
//
// Поводы для удаления:
//
//   - FAILED task: каталог удаляется сразу, если не задан retain_intermediate
//   - истёк срок хранения терминального task (периодический sweep по cron)
//   - каталог без записи в Store старше срока хранения (orphan)
//   - явное удаление task через API
//   - рестарт: tasks из журнала, бывшие QUEUED или RUNNING, помечаются FAILED
//
// Удаляется всегда весь каталог <work-root>/<task-id>, поэтому cleanup
// одного task не может задеть артефакты другого.
package cleanup
