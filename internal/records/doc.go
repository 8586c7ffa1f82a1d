// Package records работает с общим хранилищем записей выдачи (карты и OBU).
//
// Хранилище принадлежит не оркестратору: статусы записей меняет только
// пара Guard/Restorer. Пакет даёт три операции:
//   - FindMatches ищет записи по связке телефон + паспорт или номер ТС + имя,
//     сразу отбрасывая записи в заблокированных статусах
//   - ReadStatus читает текущий статус
//   - WriteStatus пишет статус и аудит-заметку
//
// MySQLStore работает поверх database/sql с драйвером go-sql-driver/mysql.
// MemoryStore хранит записи в памяти (sandbox и тесты).
package records
