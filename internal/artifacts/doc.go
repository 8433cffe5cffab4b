// Package artifacts управляет файлами, которые создаёт pipeline.
//
// Layout задаёт пространство имён: все артефакты task лежат в
// <work_root>/<task-id>. Удаление идемпотентно и ограничено этим каталогом.
//
// MinIOUploader (опционально) публикует итоговый артефакт в
// S3-совместимое хранилище после успешного завершения task.
package artifacts
