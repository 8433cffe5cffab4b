// Package config читает настройки mocapd из переменных окружения.
//
// Некорректные значения заменяются значениями по умолчанию.
// Пустые DB_URL, RABBITMQ_URL и MOCAP_MINIO_ENDPOINT отключают
// соответствующую интеграцию.
package config
